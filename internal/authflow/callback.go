package authflow

import (
	"context"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/daviddozie/flowvahub/pkg/identity"
)

// SignInPath is where the callback lands when no usable next target is given.
const SignInPath = "/signin"

// VerifiedParam is appended to the callback's success redirect.
const VerifiedParam = "verified"

// OAuth returns the provider-hosted authorization URL for provider along with
// the PKCE verifier the callback will need. Nothing is validated and no form
// state is tracked for this path.
func (c *Controller) OAuth(provider string) (string, string) {
	verifier := oauth2.GenerateVerifier()
	target := c.provider.AuthorizeURL(provider, identity.AuthorizeOptions{
		RedirectTo:    c.opts.CallbackURL,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
	})
	c.logger.Info("oauth redirect issued", "provider", provider)
	return target, verifier
}

// CompleteCallback exchanges code for a session and returns where the browser
// goes next. A missing code or a failed exchange lands on the sign in page.
// The exchanged session is discarded.
func (c *Controller) CompleteCallback(ctx context.Context, code, next, verifier string) string {
	if strings.TrimSpace(code) == "" {
		c.observe(KindCallback, OutcomeRejected)
		return SignInPath
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if _, err := c.provider.ExchangeCodeForSession(callCtx, code, verifier); err != nil {
		c.logger.Warn("auth code exchange failed", "error", err)
		c.observe(KindCallback, OutcomeFailed)
		return SignInPath
	}
	c.observe(KindCallback, OutcomeSucceeded)

	target, err := url.Parse(SafeNext(next))
	if err != nil {
		return SignInPath + "?" + VerifiedParam + "=true"
	}
	q := target.Query()
	q.Set(VerifiedParam, "true")
	target.RawQuery = q.Encode()
	return target.String()
}

// SafeNext returns next when it is a local absolute path and SignInPath otherwise.
func SafeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return SignInPath
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return SignInPath
	}
	return next
}

// VerifiedBannerTTL is how long the email-verified banner stays up.
const VerifiedBannerTTL = 5 * time.Second

// VerifiedMessage is shown on the sign in page after a verified callback.
const VerifiedMessage = "Email verified successfully! You can now log in."

// Banner is a message that dismisses itself after a fixed interval.
type Banner struct {
	Message string
	shownAt time.Time
	ttl     time.Duration
}

// NewVerifiedBanner returns the email-verified banner, not yet shown.
func NewVerifiedBanner() *Banner {
	return &Banner{Message: VerifiedMessage, ttl: VerifiedBannerTTL}
}

// Show starts the banner's visibility window at now.
func (b *Banner) Show(now time.Time) {
	b.shownAt = now
}

// Visible reports whether the banner is still up at now.
func (b *Banner) Visible(now time.Time) bool {
	if b == nil || b.shownAt.IsZero() {
		return false
	}
	elapsed := now.Sub(b.shownAt)
	return elapsed >= 0 && elapsed < b.ttl
}

// DismissAfter is the remaining visible time at now, in whole milliseconds,
// used for the page's auto-dismiss timer.
func (b *Banner) DismissAfter(now time.Time) int64 {
	if !b.Visible(now) {
		return 0
	}
	return (b.ttl - now.Sub(b.shownAt)).Milliseconds()
}
