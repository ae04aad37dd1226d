package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cli, err := New(srv.URL, "anon-key")
	require.NoError(t, err)
	return cli
}

func TestSignInWithPasswordSendsGrantAndKey(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body["email"])
		assert.Equal(t, "correct-horse", body["password"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"refresh_token": "refresh",
			"expires_in":    3600,
			"user":          map[string]any{"id": "u-1", "email": "user@example.com"},
		})
	})

	sess, err := cli.SignInWithPassword(context.Background(), "user@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "access", sess.AccessToken)
	assert.Equal(t, "refresh", sess.RefreshToken)
	assert.Equal(t, "u-1", sess.User.ID)
}

func TestProviderErrorShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		code string
		want string
	}{
		{name: "msg", body: `{"code":400,"msg":"User already registered"}`, want: "User already registered"},
		{name: "error_description", body: `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, want: "Invalid login credentials"},
		{name: "error_code", body: `{"error_code":"weak_password","message":"Password is too weak"}`, code: "weak_password", want: "Password is too weak"},
		{name: "plain text", body: `upstream exploded`, want: "upstream exploded"},
		{name: "empty", body: ``, want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := cli.SignInWithPassword(context.Background(), "a@b.co", "password1")
			var apiErr APIError
			require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tc.want, apiErr.Message)
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}
}

func TestSignUpHandlesBareAndWrappedUser(t *testing.T) {
	var wrapped bool
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		assert.Equal(t, "https://hub.example.com/auth/callback", r.URL.Query().Get("redirect_to"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "challenge", body["code_challenge"])
		assert.Equal(t, "s256", body["code_challenge_method"])
		if wrapped {
			_, _ = w.Write([]byte(`{"access_token":"a","user":{"id":"u-2","email":"new@example.com"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-1","email":"new@example.com"}`))
	})
	in := SignUpInput{
		Email:         "new@example.com",
		Password:      "password123",
		RedirectTo:    "https://hub.example.com/auth/callback",
		CodeChallenge: "challenge",
	}

	u, err := cli.SignUp(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)

	wrapped = true
	u, err = cli.SignUp(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "u-2", u.ID)
}

func TestAuthorizeURL(t *testing.T) {
	cli, err := New("https://project.supabase.co/", "anon")
	require.NoError(t, err)

	raw := cli.AuthorizeURL("google", AuthorizeOptions{
		RedirectTo:    "https://hub.example.com/auth/callback",
		CodeChallenge: "xyz",
	})
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "project.supabase.co", parsed.Host)
	assert.Equal(t, "/auth/v1/authorize", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "google", q.Get("provider"))
	assert.Equal(t, "https://hub.example.com/auth/callback", q.Get("redirect_to"))
	assert.Equal(t, "xyz", q.Get("code_challenge"))
	assert.Equal(t, "s256", q.Get("code_challenge_method"))
}

func TestGetUserUsesAccessToken(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"u-1","email":"a@b.co","user_metadata":{"first_name":" Ada ","avatar_url":"https://img"}}`))
	})
	u, err := cli.GetUser(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Metadata("first_name"))
	assert.Equal(t, "", u.Metadata("last_name"))

	_, err = cli.GetUser(context.Background(), " ")
	require.Error(t, err)
}

func TestRecoverAndExchange(t *testing.T) {
	var paths []string
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		if strings.HasSuffix(r.URL.Path, "/token") {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "code-1", body["auth_code"])
			assert.Equal(t, "verifier-1", body["code_verifier"])
			_, _ = w.Write([]byte(`{"access_token":"a"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, cli.ResetPasswordForEmail(context.Background(), "a@b.co", RecoverOptions{RedirectTo: "https://hub/reset-password"}))
	sess, err := cli.ExchangeCodeForSession(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, "a", sess.AccessToken)
	require.Len(t, paths, 2)
	assert.Equal(t, "/auth/v1/recover?redirect_to=https%3A%2F%2Fhub%2Freset-password", paths[0])
	assert.Equal(t, "/auth/v1/token?grant_type=pkce", paths[1])
}
