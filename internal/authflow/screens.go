package authflow

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/daviddozie/flowvahub/internal/validate"
	"github.com/daviddozie/flowvahub/pkg/identity"
)

// DashboardPath is where a successful sign in lands.
const DashboardPath = "/dashboard"

// Result is what a screen's submit produced.
type Result struct {
	Form    Form
	Outcome Outcome
	// Session is set after a successful sign in.
	Session *identity.Session
	// Verifier is the PKCE verifier the caller must keep for the callback.
	Verifier string
	// Redirect is set when the screen navigates away on success.
	Redirect string
}

// SignUp validates email, password and confirmation, then registers the account.
// On success every field is cleared and the success banner is set. On failure
// the provider message lands on the email field and the values are kept.
func (c *Controller) SignUp(ctx context.Context, f Form) (Result, error) {
	verifier := oauth2.GenerateVerifier()
	f, outcome, err := c.submit(ctx, KindSignUp, f, validate.SignUpFields, func(ctx context.Context) error {
		_, err := c.provider.SignUp(ctx, identity.SignUpInput{
			Email:         f.Values.Email,
			Password:      f.Values.Password,
			RedirectTo:    c.opts.CallbackURL,
			CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		})
		return err
	})
	res := Result{Form: f, Outcome: outcome}
	if err != nil || outcome != OutcomeSucceeded {
		return res, err
	}
	res.Form.Values = validate.Credentials{}
	res.Form.Errors = validate.Errors{}
	res.Form.Banner = SignUpSuccessMessage
	res.Verifier = verifier
	return res, nil
}

// SignIn validates email and password, then signs in. Success carries the
// session and a redirect to the dashboard.
func (c *Controller) SignIn(ctx context.Context, f Form) (Result, error) {
	var session identity.Session
	f, outcome, err := c.submit(ctx, KindSignIn, f, validate.SignInFields, func(ctx context.Context) error {
		s, err := c.provider.SignInWithPassword(ctx, f.Values.Email, f.Values.Password)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	res := Result{Form: f, Outcome: outcome}
	if err != nil || outcome != OutcomeSucceeded {
		return res, err
	}
	res.Session = &session
	res.Redirect = DashboardPath
	return res, nil
}

// ForgotPassword validates the email and asks the provider to send a reset link.
// On success the email field is cleared and the banner is set.
func (c *Controller) ForgotPassword(ctx context.Context, f Form) (Result, error) {
	verifier := oauth2.GenerateVerifier()
	f, outcome, err := c.submit(ctx, KindForgotPassword, f, validate.ForgotPasswordFields, func(ctx context.Context) error {
		return c.provider.ResetPasswordForEmail(ctx, f.Values.Email, identity.RecoverOptions{
			RedirectTo:    c.opts.ResetRedirect,
			CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		})
	})
	res := Result{Form: f, Outcome: outcome}
	if err != nil || outcome != OutcomeSucceeded {
		return res, err
	}
	res.Form.Values.Email = ""
	res.Form.Banner = ForgotPasswordSuccessMessage
	res.Verifier = verifier
	return res, nil
}
