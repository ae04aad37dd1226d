package session

import (
	"context"
	"strings"
	"time"

	"github.com/daviddozie/flowvahub/pkg/identity"
)

// RefreshLeeway refreshes tokens slightly before they actually expire.
const RefreshLeeway = 30 * time.Second

// Refresher trades a refresh token for a new provider session.
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (identity.Session, error)
}

// Refresh renews t when its access token has expired and a refresh token is
// available. The bool reports whether a refresh happened.
func Refresh(ctx context.Context, r Refresher, t Tokens, now time.Time) (Tokens, identity.Session, bool, error) {
	if !t.Expired(now, RefreshLeeway) || strings.TrimSpace(t.RefreshToken) == "" {
		return t, identity.Session{}, false, nil
	}
	sess, err := r.RefreshSession(ctx, t.RefreshToken)
	if err != nil {
		return t, identity.Session{}, false, err
	}
	next := TokensFrom(sess, now)
	if next.RefreshToken == "" {
		next.RefreshToken = t.RefreshToken
	}
	return next, sess, true, nil
}
