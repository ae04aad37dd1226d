package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/daviddozie/flowvahub/pkg/crypto"
	"github.com/daviddozie/flowvahub/pkg/identity"
	"github.com/daviddozie/flowvahub/pkg/jwt"
)

// ErrNoSession is returned when the request carries no usable session.
var ErrNoSession = errors.New("session: no session")

const (
	sessionMaxAge  = 7 * 24 * time.Hour
	verifierMaxAge = 10 * time.Minute
	verifierPath   = "/auth"
)

// Tokens is the provider session the browser carries between requests.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// TokensFrom extracts the tokens of a provider session. When the provider only
// sent expires_in, the absolute expiry is computed from now.
func TokensFrom(s identity.Session, now time.Time) Tokens {
	t := Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, ExpiresAt: s.ExpiresAt}
	if t.ExpiresAt == 0 && s.ExpiresIn > 0 {
		t.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return t
}

// Expired reports whether the access token is at or past expiry, within leeway.
// The stored expiry wins; otherwise the token's exp claim is read.
func (t Tokens) Expired(now time.Time, leeway time.Duration) bool {
	if t.ExpiresAt > 0 {
		return !now.Add(leeway).Before(time.Unix(t.ExpiresAt, 0))
	}
	claims, err := jwt.Decode(t.AccessToken, "")
	if err != nil {
		return false
	}
	return claims.Expired(now, leeway)
}

// Manager issues and reads the sealed session and PKCE verifier cookies.
type Manager struct {
	name      string
	secure    bool
	tokens    *crypto.Sealer
	verifiers *crypto.Sealer
}

// New constructs a Manager. secret is required.
func New(secret, cookieName string, secure bool) (Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return Manager{}, errors.New("session secret required")
	}
	if strings.TrimSpace(cookieName) == "" {
		cookieName = "flowva_session"
	}
	tokens, err := crypto.NewSealer(secret, "flowva session")
	if err != nil {
		return Manager{}, err
	}
	verifiers, err := crypto.NewSealer(secret, "flowva pkce verifier")
	if err != nil {
		return Manager{}, err
	}
	return Manager{name: cookieName, secure: secure, tokens: tokens, verifiers: verifiers}, nil
}

// CookieName returns the session cookie name.
func (m Manager) CookieName() string {
	return m.name
}

// MakeCookie seals t into the session cookie.
func (m Manager) MakeCookie(t Tokens) (*http.Cookie, error) {
	if strings.TrimSpace(t.AccessToken) == "" {
		return nil, errors.New("access token required")
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	value, err := m.tokens.Seal(payload)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// TokensFromRequest opens the session cookie on r.
func (m Manager) TokensFromRequest(r *http.Request) (Tokens, error) {
	cookie, err := r.Cookie(m.name)
	if err != nil {
		return Tokens{}, ErrNoSession
	}
	plain, err := m.tokens.Open(cookie.Value)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	var t Tokens
	if err := json.Unmarshal(plain, &t); err != nil || t.AccessToken == "" {
		return Tokens{}, ErrNoSession
	}
	return t, nil
}

// ExpireCookie returns a cookie that removes the session.
func (m Manager) ExpireCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m Manager) verifierName() string {
	return m.name + "_pkce"
}

// VerifierCookie seals a PKCE verifier for the callback to pick up.
func (m Manager) VerifierCookie(verifier string) (*http.Cookie, error) {
	value, err := m.verifiers.Seal([]byte(verifier))
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     m.verifierName(),
		Value:    value,
		Path:     verifierPath,
		MaxAge:   int(verifierMaxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// VerifierFromRequest returns the PKCE verifier on r, or "" when there is none.
func (m Manager) VerifierFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(m.verifierName())
	if err != nil {
		return ""
	}
	plain, err := m.verifiers.Open(cookie.Value)
	if err != nil {
		return ""
	}
	return string(plain)
}

// ExpireVerifierCookie returns a cookie that removes the PKCE verifier.
func (m Manager) ExpireVerifierCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.verifierName(),
		Value:    "",
		Path:     verifierPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
