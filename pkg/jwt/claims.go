package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the access-token payload the identity provider signs.
type Claims struct {
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwtlib.RegisteredClaims
}

// UserID returns the subject, which the provider sets to the user id.
func (c *Claims) UserID() string {
	return c.Subject
}

// Metadata returns a user-metadata string or "".
func (c *Claims) Metadata(key string) string {
	if c == nil || c.UserMetadata == nil {
		return ""
	}
	if s, ok := c.UserMetadata[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Expired reports whether the token expires within leeway of now.
// A token without an exp claim never expires.
func (c *Claims) Expired(now time.Time, leeway time.Duration) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Add(leeway).Before(c.ExpiresAt.Time)
}

// Decode extracts claims from a provider access token. When secret is set the
// HS256 signature is verified; otherwise the payload is read unverified, which
// is only used for display. Expiry is never enforced here so callers can
// decide to refresh.
func Decode(token, secret string) (*Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errors.New("token required")
	}
	claims := &Claims{}
	if secret == "" {
		if _, _, err := jwtlib.NewParser().ParseUnverified(trimmed, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}
	parsed, err := jwtlib.ParseWithClaims(trimmed, claims, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}), jwtlib.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
