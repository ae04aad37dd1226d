package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/daviddozie/flowvahub/internal/authflow"
	"github.com/daviddozie/flowvahub/internal/session"
	"github.com/daviddozie/flowvahub/internal/validate"
)

// screen is the static copy of one auth page.
type screen struct {
	Template     string
	Title        string
	Heading      string
	Subtitle     string
	Submit       string
	LoadingLabel string
	Action       string
}

var (
	signUpScreen = screen{
		Template:     "signup.html",
		Title:        "Sign up",
		Heading:      "Create Your Account",
		Subtitle:     "Sign up to manage your tools",
		Submit:       "Sign Up Account",
		LoadingLabel: "Creating account...",
		Action:       "/signup",
	}
	signInScreen = screen{
		Template:     "signin.html",
		Title:        "Log in",
		Heading:      "Log in to Flowva",
		Subtitle:     "Log in to receive personalized recommendations",
		Submit:       "Sign in",
		LoadingLabel: "Signing in...",
		Action:       "/signin",
	}
	forgotPasswordScreen = screen{
		Template:     "forgot_password.html",
		Title:        "Reset password",
		Heading:      "Reset Password",
		Subtitle:     "Enter your email to receive a reset link",
		Submit:       "Send Reset Link",
		LoadingLabel: "Sending link...",
		Action:       "/forgot-password",
	}
)

func (s *Server) renderForm(w http.ResponseWriter, r *http.Request, status int, sc screen, f authflow.Form, extra map[string]any) {
	data := map[string]any{
		"Title":  sc.Title,
		"Screen": sc,
		"Form":   f,
	}
	for k, v := range extra {
		data[k] = v
	}
	s.render(w, r, status, sc.Template, data)
}

func formFromRequest(r *http.Request) authflow.Form {
	f := authflow.NewForm()
	if id := strings.TrimSpace(r.PostFormValue("form_id")); id != "" {
		f.ID = id
	}
	f.Values = validate.Credentials{
		Email:           r.PostFormValue(validate.FieldEmail),
		Password:        r.PostFormValue(validate.FieldPassword),
		ConfirmPassword: r.PostFormValue(validate.FieldConfirmPassword),
	}
	return f
}

// submitStatus maps a submit error to the response status, or 0 when the
// client went away and nothing should be written.
func (s *Server) submitStatus(r *http.Request, res authflow.Result, err error) int {
	switch {
	case err == nil && res.Outcome == authflow.OutcomeRejected:
		return http.StatusUnprocessableEntity
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authflow.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, authflow.ErrAbandoned):
		s.logger.Info("client left before auth call settled", "path", r.URL.Path)
		return 0
	default:
		s.logger.Error("auth submission failed", "path", r.URL.Path, "error", err)
		return http.StatusInternalServerError
	}
}

func (s *Server) setVerifier(w http.ResponseWriter, verifier string) {
	if verifier == "" {
		return
	}
	cookie, err := s.sessions.VerifierCookie(verifier)
	if err != nil {
		s.logger.Error("seal pkce verifier failed", "error", err)
		return
	}
	http.SetCookie(w, cookie)
}

func (s *Server) handleSignUpPage(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, r, http.StatusOK, signUpScreen, authflow.NewForm(), nil)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	res, err := s.flows.SignUp(r.Context(), formFromRequest(r))
	status := s.submitStatus(r, res, err)
	if status == 0 {
		return
	}
	s.setVerifier(w, res.Verifier)
	s.renderForm(w, r, status, signUpScreen, res.Form, nil)
}

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	extra := map[string]any{}
	if r.URL.Query().Get(authflow.VerifiedParam) == "true" {
		banner := authflow.NewVerifiedBanner()
		now := s.now()
		banner.Show(now)
		extra["Verified"] = banner.Message
		extra["VerifiedDismissMS"] = banner.DismissAfter(now)
	}
	s.renderForm(w, r, http.StatusOK, signInScreen, authflow.NewForm(), extra)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	res, err := s.flows.SignIn(r.Context(), formFromRequest(r))
	status := s.submitStatus(r, res, err)
	if status == 0 {
		return
	}
	if status == http.StatusOK && res.Session != nil {
		tokens := session.TokensFrom(*res.Session, s.now())
		cookie, err := s.sessions.MakeCookie(tokens)
		if err != nil {
			s.logger.Error("issue session cookie failed", "error", err)
			res.Form.State = authflow.StateFailed
			res.Form.Errors = validate.Errors{validate.FieldEmail: authflow.GenericErrorMessage}
			s.renderForm(w, r, http.StatusInternalServerError, signInScreen, res.Form, nil)
			return
		}
		http.SetCookie(w, cookie)
		s.publish(r.Context(), session.NewEvent(session.EventSignedIn, session.SnapshotOf(res.Session.User), s.now()))
		http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
		return
	}
	res.Form.Values.ConfirmPassword = ""
	s.renderForm(w, r, status, signInScreen, res.Form, nil)
}

func (s *Server) handleForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, r, http.StatusOK, forgotPasswordScreen, authflow.NewForm(), nil)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	res, err := s.flows.ForgotPassword(r.Context(), formFromRequest(r))
	status := s.submitStatus(r, res, err)
	if status == 0 {
		return
	}
	s.setVerifier(w, res.Verifier)
	s.renderForm(w, r, status, forgotPasswordScreen, res.Form, nil)
}

// handleValidate re-checks the fields affected by a change to one field, for
// on-blur feedback.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	field := strings.TrimSpace(r.PostFormValue("field"))
	if field == "" {
		writeError(w, http.StatusBadRequest, "field is required")
		return
	}
	creds := validate.Credentials{
		Email:           r.PostFormValue(validate.FieldEmail),
		Password:        r.PostFormValue(validate.FieldPassword),
		ConfirmPassword: r.PostFormValue(validate.FieldConfirmPassword),
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": validate.Changed(field, creds)})
}

func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if provider != "google" {
		s.renderError(w, r, http.StatusNotFound, "Unknown sign in provider")
		return
	}
	target, verifier := s.flows.OAuth(provider)
	s.setVerifier(w, verifier)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	verifier := s.sessions.VerifierFromRequest(r)
	target := s.flows.CompleteCallback(r.Context(), q.Get("code"), q.Get("next"), verifier)
	http.SetCookie(w, s.sessions.ExpireVerifierCookie())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	tokens, user := s.currentSession(w, r)
	if tokens != nil {
		if err := s.identity.SignOut(r.Context(), tokens.AccessToken); err != nil {
			s.logger.Warn("provider sign out failed", "error", err)
		}
		s.publish(r.Context(), session.NewEvent(session.EventSignedOut, *user, s.now()))
	}
	http.SetCookie(w, s.sessions.ExpireCookie())
	http.Redirect(w, r, authflow.SignInPath, http.StatusSeeOther)
}
