package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the identity provider's auth API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provider base URL using the public API key.
func New(base, apiKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("provider base url required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid provider base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/") + "/auth/v1",
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the provider. Message is the
// human-readable text the provider supplied, if any.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity request failed with status %d", e.Status)
	}
	return fmt.Sprintf("identity request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", c.apiKey)
	bearer := strings.TrimSpace(token)
	if bearer == "" {
		bearer = c.apiKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		code, msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Code: code, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extractError understands the handful of error shapes the provider emits.
func extractError(body io.Reader) (string, string) {
	if body == nil {
		return "", ""
	}
	var payload struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "", ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", strings.TrimSpace(string(data))
	}
	code := payload.ErrorCode
	if code == "" {
		if s, ok := payload.Code.(string); ok {
			code = s
		}
	}
	for _, candidate := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return code, trimmed
		}
	}
	return code, ""
}

// User reflects provider user payloads.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	Role             string         `json:"role,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Metadata returns a user-metadata value as a string, or "" when absent.
func (u User) Metadata(key string) string {
	if u.UserMetadata == nil {
		return ""
	}
	if s, ok := u.UserMetadata[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Session is the token payload the provider issues on sign in or code exchange.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// SignUpInput captures the payload for account creation.
type SignUpInput struct {
	Email         string
	Password      string
	RedirectTo    string
	CodeChallenge string
}

type pkceBody struct {
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

func newPKCEBody(challenge string) pkceBody {
	if challenge == "" {
		return pkceBody{}
	}
	return pkceBody{CodeChallenge: challenge, CodeChallengeMethod: "s256"}
}

func redirectQuery(target string) url.Values {
	if strings.TrimSpace(target) == "" {
		return nil
	}
	return url.Values{"redirect_to": []string{target}}
}

// SignUp registers a new account. Depending on the provider's confirmation
// settings the response is either the bare user or a session wrapping it.
func (c *Client) SignUp(ctx context.Context, in SignUpInput) (User, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		pkceBody
	}{Email: in.Email, Password: in.Password, pkceBody: newPKCEBody(in.CodeChallenge)}
	var resp struct {
		User
		Nested *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/signup", redirectQuery(in.RedirectTo), body, "", &resp); err != nil {
		return User{}, err
	}
	if resp.Nested != nil {
		return *resp.Nested, nil
	}
	return resp.User, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp Session
	query := url.Values{"grant_type": []string{"password"}}
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// RecoverOptions configures the password reset email.
type RecoverOptions struct {
	RedirectTo    string
	CodeChallenge string
}

// ResetPasswordForEmail asks the provider to email a password reset link.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string, opts RecoverOptions) error {
	body := struct {
		Email string `json:"email"`
		pkceBody
	}{Email: email, pkceBody: newPKCEBody(opts.CodeChallenge)}
	return c.do(ctx, http.MethodPost, "/recover", redirectQuery(opts.RedirectTo), body, "", nil)
}

// AuthorizeOptions configures a provider-hosted OAuth redirect.
type AuthorizeOptions struct {
	RedirectTo    string
	CodeChallenge string
}

// AuthorizeURL builds the provider-hosted OAuth authorization URL.
func (c *Client) AuthorizeURL(provider string, opts AuthorizeOptions) string {
	query := url.Values{"provider": []string{provider}}
	if opts.RedirectTo != "" {
		query.Set("redirect_to", opts.RedirectTo)
	}
	if opts.CodeChallenge != "" {
		query.Set("code_challenge", opts.CodeChallenge)
		query.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/authorize?" + query.Encode()
}

// ExchangeCodeForSession trades an authorization code and its PKCE verifier for a session.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, verifier string) (Session, error) {
	body := map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}
	var resp Session
	query := url.Values{"grant_type": []string{"pkce"}}
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// RefreshSession trades a refresh token for a fresh session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var resp Session
	query := url.Values{"grant_type": []string{"refresh_token"}}
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// GetUser returns the user the access token belongs to.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	if strings.TrimSpace(accessToken) == "" {
		return User{}, APIError{Status: http.StatusUnauthorized, Message: "access token required"}
	}
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, accessToken, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// SignOut revokes the session behind the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/logout", nil, nil, accessToken, nil)
}

// Health pings the provider's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, "", nil)
}
