package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddozie/flowvahub/internal/authflow"
	"github.com/daviddozie/flowvahub/internal/session"
	"github.com/daviddozie/flowvahub/internal/validate"
	"github.com/daviddozie/flowvahub/internal/ws"
	"github.com/daviddozie/flowvahub/pkg/config"
	"github.com/daviddozie/flowvahub/pkg/identity"
)

const testJWTSecret = "jwt-secret"

var testNow = time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC)

type fakeIdentity struct {
	mu          sync.Mutex
	calls       map[string]int
	verifiers   []string
	session     identity.Session
	signInErr   error
	exchangeErr error
	healthErr   error

	// signInBlock, when set, holds sign in calls until it is closed.
	signInBlock   chan struct{}
	signInEntered chan struct{}
}

func newFakeIdentity(session identity.Session) *fakeIdentity {
	return &fakeIdentity{calls: map[string]int{}, session: session}
}

func (f *fakeIdentity) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeIdentity) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeIdentity) SignUp(_ context.Context, in identity.SignUpInput) (identity.User, error) {
	f.record("signup")
	return identity.User{ID: "u-1", Email: in.Email}, nil
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, _, _ string) (identity.Session, error) {
	f.record("signin")
	if f.signInEntered != nil {
		f.signInEntered <- struct{}{}
	}
	if f.signInBlock != nil {
		select {
		case <-f.signInBlock:
		case <-ctx.Done():
			return identity.Session{}, ctx.Err()
		}
	}
	if f.signInErr != nil {
		return identity.Session{}, f.signInErr
	}
	return f.session, nil
}

func (f *fakeIdentity) ResetPasswordForEmail(context.Context, string, identity.RecoverOptions) error {
	f.record("recover")
	return nil
}

func (f *fakeIdentity) AuthorizeURL(provider string, opts identity.AuthorizeOptions) string {
	return "https://id.example.com/authorize?provider=" + provider + "&redirect_to=" + url.QueryEscape(opts.RedirectTo)
}

func (f *fakeIdentity) ExchangeCodeForSession(_ context.Context, code, verifier string) (identity.Session, error) {
	f.record("exchange")
	f.mu.Lock()
	f.verifiers = append(f.verifiers, verifier)
	f.mu.Unlock()
	if f.exchangeErr != nil {
		return identity.Session{}, f.exchangeErr
	}
	return f.session, nil
}

func (f *fakeIdentity) GetUser(context.Context, string) (identity.User, error) {
	return f.session.User, nil
}

func (f *fakeIdentity) RefreshSession(context.Context, string) (identity.Session, error) {
	f.record("refresh")
	return f.session, nil
}

func (f *fakeIdentity) SignOut(context.Context, string) error {
	f.record("signout")
	return nil
}

func (f *fakeIdentity) Health(context.Context) error {
	return f.healthErr
}

func accessToken(t *testing.T) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":   "u-1",
		"email": "ada.lovelace@example.com",
		"exp":   testNow.Add(time.Hour).Unix(),
		"user_metadata": map[string]any{
			"first_name": "Ada",
			"last_name":  "Lovelace",
		},
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func testSession(t *testing.T) identity.Session {
	return identity.Session{
		AccessToken:  accessToken(t),
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(time.Hour).Unix(),
		User: identity.User{
			ID:           "u-1",
			Email:        "ada.lovelace@example.com",
			UserMetadata: map[string]any{"first_name": "Ada", "last_name": "Lovelace"},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *fakeIdentity) {
	t.Helper()
	fake := newFakeIdentity(testSession(t))
	hub := ws.NewHub()
	t.Cleanup(hub.Close)
	srv, err := New(config.WebConfig{
		PublicURL:             "http://localhost:3000",
		ProviderJWTSecret:     testJWTSecret,
		SessionSecret:         "test-session-secret",
		SessionCookieName:     "flowva_session",
		ReferralBaseURL:       "https://app.flowvahub.com/signup",
		PasswordResetRedirect: "http://localhost:3000/reset-password",
	}, Deps{
		Identity: fake,
		Hub:      hub,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return srv, fake
}

func postForm(t *testing.T, srv http.Handler, path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, srv http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCallbackRedirects(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := get(t, srv, "/auth/callback")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get("Location"))
	assert.Zero(t, fake.count("exchange"))

	rec = get(t, srv, "/auth/callback?code=abc&next="+url.QueryEscape("/dashboard/earn-rewards"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard/earn-rewards?verified=true", rec.Header().Get("Location"))
	expired := cookieNamed(rec, "flowva_session_pkce")
	require.NotNil(t, expired)
	assert.Less(t, expired.MaxAge, 0)
	assert.Nil(t, cookieNamed(rec, "flowva_session"), "the exchanged session is not kept")

	rec = get(t, srv, "/auth/callback?code=abc")
	assert.Equal(t, "/signin?verified=true", rec.Header().Get("Location"))

	rec = get(t, srv, "/auth/callback?code=abc&next="+url.QueryEscape("https://evil.example/x"))
	assert.Equal(t, "/signin?verified=true", rec.Header().Get("Location"))

	fake.exchangeErr = identity.APIError{Status: 400, Message: "invalid flow state"}
	rec = get(t, srv, "/auth/callback?code=abc&next=/dashboard")
	assert.Equal(t, "/signin", rec.Header().Get("Location"))
}

func TestOAuthCarriesVerifierToCallback(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := get(t, srv, "/auth/oauth/google")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://id.example.com/authorize?provider=google"))
	assert.Contains(t, rec.Header().Get("Location"), url.QueryEscape("http://localhost:3000/auth/callback"))
	pkce := cookieNamed(rec, "flowva_session_pkce")
	require.NotNil(t, pkce)
	assert.Equal(t, "/auth", pkce.Path)

	rec = get(t, srv, "/auth/callback?code=abc", pkce)
	assert.Equal(t, "/signin?verified=true", rec.Header().Get("Location"))
	assert.Nil(t, cookieNamed(rec, "flowva_session"), "the exchanged session is not kept")
	require.Len(t, fake.verifiers, 1)
	assert.NotEmpty(t, fake.verifiers[0])

	rec = get(t, srv, "/auth/oauth/github")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignInShortPasswordMakesNoCall(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := postForm(t, srv, "/signin", url.Values{
		"email":    {"ada@example.com"},
		"password": {"short"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), validate.MsgPasswordTooShort)
	assert.Contains(t, rec.Body.String(), `value="ada@example.com"`)
	assert.Zero(t, fake.count("signin"))
}

func TestSignInSuccessIssuesSessionCookie(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := postForm(t, srv, "/signin", url.Values{
		"email":    {"ada.lovelace@example.com"},
		"password": {"correct horse"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.Equal(t, 1, fake.count("signin"))
	cookie := cookieNamed(rec, "flowva_session")
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	page := get(t, srv, "/dashboard", cookie)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Ada Lovelace")
	assert.Contains(t, page.Body.String(), "ada.lovelace@example.com")
	assert.Zero(t, fake.count("refresh"))
}

func TestDuplicateSubmitKeepsFormUsable(t *testing.T) {
	srv, fake := newTestServer(t)
	fake.signInBlock = make(chan struct{})
	fake.signInEntered = make(chan struct{}, 1)

	values := url.Values{
		"form_id":  {"form-1"},
		"email":    {"ada.lovelace@example.com"},
		"password": {"correct horse"},
	}
	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- postForm(t, srv, "/signin", values)
	}()
	<-fake.signInEntered

	rec := postForm(t, srv, "/signin", values)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "still processing")
	assert.Contains(t, body, `<button type="submit" data-label="Sign in">Sign in</button>`)
	assert.NotContains(t, body, `type="submit" disabled`)
	assert.Contains(t, body, `value="ada.lovelace@example.com"`)

	close(fake.signInBlock)
	settled := <-first
	assert.Equal(t, http.StatusSeeOther, settled.Code)

	fake.signInEntered = nil
	retry := postForm(t, srv, "/signin", values)
	assert.Equal(t, http.StatusSeeOther, retry.Code)
	assert.NotNil(t, cookieNamed(retry, "flowva_session"))
}

func TestSignInProviderErrorShownOnEmail(t *testing.T) {
	srv, fake := newTestServer(t)
	fake.signInErr = identity.APIError{Status: 400, Message: "Invalid login credentials"}

	rec := postForm(t, srv, "/signin", url.Values{
		"email":    {"ada@example.com"},
		"password": {"correct horse"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid login credentials")
	assert.Nil(t, cookieNamed(rec, "flowva_session"))
}

func TestSignUpShowsBannerAndClearsFields(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := postForm(t, srv, "/signup", url.Values{
		"email":           {"ada@example.com"},
		"password":        {"password123"},
		"confirmPassword": {"password123"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.count("signup"))
	body := rec.Body.String()
	assert.Contains(t, body, authflow.SignUpSuccessMessage)
	assert.NotContains(t, body, `value="ada@example.com"`)
	assert.NotNil(t, cookieNamed(rec, "flowva_session_pkce"))
}

func TestSignUpMismatchRejected(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := postForm(t, srv, "/signup", url.Values{
		"email":           {"ada@example.com"},
		"password":        {"password123"},
		"confirmPassword": {"password124"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), validate.MsgPasswordMismatch)
	assert.Zero(t, fake.count("signup"))
}

func TestForgotPasswordBanner(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := postForm(t, srv, "/forgot-password", url.Values{"email": {"ada@example.com"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.count("recover"))
	assert.Contains(t, rec.Body.String(), authflow.ForgotPasswordSuccessMessage)
}

func TestSignInPageVerifiedBanner(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/signin?verified=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), authflow.VerifiedMessage)
	assert.Contains(t, rec.Body.String(), `data-dismiss-after="5000"`)

	rec = get(t, srv, "/signin")
	assert.NotContains(t, rec.Body.String(), authflow.VerifiedMessage)
}

func TestValidateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postForm(t, srv, "/validate", url.Values{
		"field":    {"password"},
		"password": {"short"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, map[string]string{"password": validate.MsgPasswordTooShort}, payload.Errors)

	rec = postForm(t, srv, "/validate", url.Values{"email": {"x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEarnRewardsTabs(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/dashboard/earn-rewards")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Rewards Hub")
	assert.Contains(t, body, "https://app.flowvahub.com/signup?ref=guest")
	assert.Contains(t, body, "0.1%")
	assert.Contains(t, body, `<button type="button" id="claim">Claim Today's Points</button>`)

	rec = get(t, srv, "/dashboard/earn-rewards?tab=redeem&filter=coming-soon")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "Coming Soon")
	assert.NotContains(t, body, "$5 Bank Transfer")
}

func TestShareRedirect(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/dashboard/earn-rewards/share/twitter")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t,
		"https://twitter.com/intent/tweet?text=Check%20out%20Flowva%20Hub%21&url="+url.QueryEscape("https://app.flowvahub.com/signup?ref=guest"),
		rec.Header().Get("Location"))

	rec = get(t, srv, "/dashboard/earn-rewards/share/myspace")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignOutExpiresCookie(t *testing.T) {
	srv, fake := newTestServer(t)
	signin := postForm(t, srv, "/signin", url.Values{
		"email":    {"ada.lovelace@example.com"},
		"password": {"correct horse"},
	})
	cookie := cookieNamed(signin, "flowva_session")
	require.NotNil(t, cookie)

	rec := postForm(t, srv, "/signout", url.Values{}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get("Location"))
	assert.Equal(t, 1, fake.count("signout"))
	expired := cookieNamed(rec, "flowva_session")
	require.NotNil(t, expired)
	assert.Less(t, expired.MaxAge, 0)
}

func TestSessionEventsRequireSession(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/dashboard/session/events")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionEventsStartWithInitialSession(t *testing.T) {
	srv, _ := newTestServer(t)
	signin := postForm(t, srv, "/signin", url.Values{
		"email":    {"ada.lovelace@example.com"},
		"password": {"correct horse"},
	})
	cookie := cookieNamed(signin, "flowva_session")
	require.NotNil(t, cookie)

	ts := httptest.NewServer(srv)
	defer ts.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/dashboard/session/events", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: session\n", eventLine)
	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dataLine, "data: "), dataLine)

	var e session.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &e))
	assert.Equal(t, session.EventInitialSession, e.Type)
	assert.Equal(t, "u-1", e.UserID)
	require.NotNil(t, e.User)
	assert.Equal(t, "ada.lovelace@example.com", e.User.Email)
}

func TestHealthz(t *testing.T) {
	srv, fake := newTestServer(t)

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	fake.healthErr = errors.New("connection refused")
	rec = get(t, srv, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestMetricsExposeRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	get(t, srv, "/signin")
	postForm(t, srv, "/signin", url.Values{"email": {"bad"}})

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `flowva_web_http_requests_total{method="GET",route="/signin",status="200"} 1`)
	assert.Contains(t, body, `flowva_web_auth_submissions_total{flow="signin",outcome="rejected"} 1`)
}

func TestRequestIDPropagated(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
