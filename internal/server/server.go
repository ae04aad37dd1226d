package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daviddozie/flowvahub/internal/authflow"
	"github.com/daviddozie/flowvahub/internal/rewards"
	"github.com/daviddozie/flowvahub/internal/session"
	"github.com/daviddozie/flowvahub/internal/ws"
	"github.com/daviddozie/flowvahub/pkg/config"
	"github.com/daviddozie/flowvahub/pkg/jwt"
)

//go:embed templates/*.html
var templateFS embed.FS

const healthCheckTimeout = 2 * time.Second

// Identity is the identity provider surface the web server uses.
type Identity interface {
	authflow.Provider
	session.UserSource
	session.Refresher
	SignOut(ctx context.Context, accessToken string) error
	Health(ctx context.Context) error
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Identity Identity
	Hub      *ws.Hub
	// Publisher defaults to a HubPublisher on Hub.
	Publisher session.Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Server hosts the Flowva Hub web UI.
type Server struct {
	cfg       config.WebConfig
	identity  Identity
	flows     *authflow.Controller
	sessions  session.Manager
	hub       *ws.Hub
	publisher session.Publisher
	catalogue *rewards.Catalogue
	templates *template.Template
	router    *mux.Router
	handler   http.Handler
	metrics   *metrics
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	now       func() time.Time
}

// New constructs a configured server ready to serve HTTP traffic.
func New(cfg config.WebConfig, deps Deps) (*Server, error) {
	if deps.Identity == nil {
		return nil, errors.New("identity provider client required")
	}
	if deps.Hub == nil {
		return nil, errors.New("session hub required")
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return nil, errors.New("SESSION_SECRET must be configured")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = session.NewHubPublisher(deps.Hub)
	}
	sessionMgr, err := session.New(cfg.SessionSecret, cfg.SessionCookieName, cfg.CookieSecure)
	if err != nil {
		return nil, err
	}
	catalogue, err := rewards.Load()
	if err != nil {
		return nil, err
	}
	tmplFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	templates, err := template.New("base").Funcs(template.FuncMap{
		"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"fieldOf": newFieldView,
	}).ParseFS(tmplFS, "*.html")
	if err != nil {
		return nil, err
	}

	m := newMetrics()
	srv := &Server{
		cfg:       cfg,
		identity:  deps.Identity,
		sessions:  sessionMgr,
		hub:       deps.Hub,
		publisher: publisher,
		catalogue: catalogue,
		templates: templates,
		router:    mux.NewRouter(),
		metrics:   m,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return sameOrigin(r, cfg.PublicURL) },
		},
		now: now,
	}
	srv.flows = authflow.New(deps.Identity, logger, authflow.Options{
		CallbackURL:   cfg.CallbackURL(),
		ResetRedirect: cfg.PasswordResetRedirect,
		Timeout:       cfg.ProviderTimeout,
		Observer:      m,
	})
	srv.registerRoutes()
	srv.handler = requestID(srv.protect(srv.router))
	return srv, nil
}

// ServeHTTP conforms to http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(s.audit)
	r.NotFoundHandler = s.audit(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.renderError(w, req, http.StatusNotFound, "Page not found")
	}))
	r.MethodNotAllowedHandler = s.audit(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.renderError(w, req, http.StatusMethodNotAllowed, "Method not allowed")
	}))

	r.HandleFunc("/", s.handleLanding).Methods(http.MethodGet)
	r.HandleFunc("/signup", s.handleSignUpPage).Methods(http.MethodGet)
	r.HandleFunc("/signup", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/signin", s.handleSignInPage).Methods(http.MethodGet)
	r.HandleFunc("/signin", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", s.handleForgotPasswordPage).Methods(http.MethodGet)
	r.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/auth/oauth/{provider}", s.handleOAuth).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", s.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/signout", s.handleSignOut).Methods(http.MethodPost)

	r.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/earn-rewards", s.handleEarnRewards).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/earn-rewards/share/{platform}", s.handleShare).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/session/ws", s.handleSessionWS).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/session/events", s.handleSessionEvents).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// protect wraps h with CSRF protection when a key is configured.
func (s *Server) protect(h http.Handler) http.Handler {
	if s.cfg.CSRFKey == "" {
		return h
	}
	opts := []csrf.Option{
		csrf.Secure(s.cfg.CookieSecure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.FieldName("csrf_token"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Warn("csrf check failed", "path", r.URL.Path, "reason", csrf.FailureReason(r))
			s.renderError(w, r, http.StatusForbidden, "Your session expired. Please reload the page and try again.")
		})),
	}
	if len(s.cfg.CSRFTrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(s.cfg.CSRFTrustedOrigins))
	}
	protected := csrf.Protect([]byte(s.cfg.CSRFKey), opts...)(h)
	if s.cfg.CookieSecure {
		return protected
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
	})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, tpl string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["CSRFField"] = csrf.TemplateField(r)
	data["CSRFToken"] = csrf.Token(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, tpl, data); err != nil {
		s.logger.Error("template render failed", "template", tpl, "error", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.logger.Warn("web error", "status", status, "message", message, "path", r.URL.Path)
	s.render(w, r, status, "error.html", map[string]any{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": message,
	})
}

// fieldView is the data the "field" partial renders one input from.
type fieldView struct {
	Name, Label, Type, Value, Placeholder, Error string
}

func newFieldView(name, label, typ, value, placeholder, errMsg string) fieldView {
	return fieldView{Name: name, Label: label, Type: typ, Value: value, Placeholder: placeholder, Error: errMsg}
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "landing.html", map[string]any{"Title": "Flowva Hub"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if err := s.identity.Health(ctx); err != nil {
		status = "degraded"
		components["identity"] = map[string]any{
			"status": "down",
			"error":  err.Error(),
		}
	} else {
		components["identity"] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  s.now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// publish sends a session event and records the outcome. Failures are logged only.
func (s *Server) publish(ctx context.Context, e session.Event) {
	err := s.publisher.Publish(ctx, e)
	s.metrics.recordSessionEvent(e.Type, err)
	if err != nil {
		s.logger.Warn("session event publish failed", "type", string(e.Type), "error", err)
	}
}

// currentSession reads and, when needed, refreshes the session on r. It
// returns nil when the request carries no usable session.
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) (*session.Tokens, *session.Snapshot) {
	tokens, err := s.sessions.TokensFromRequest(r)
	if err != nil {
		return nil, nil
	}
	next, refreshed, ok, err := session.Refresh(r.Context(), s.identity, tokens, s.now())
	if err != nil {
		s.logger.Info("session refresh failed", "error", err)
		http.SetCookie(w, s.sessions.ExpireCookie())
		return nil, nil
	}
	if ok {
		tokens = next
		if cookie, err := s.sessions.MakeCookie(tokens); err == nil {
			http.SetCookie(w, cookie)
		}
	}
	claims, err := jwt.Decode(tokens.AccessToken, s.cfg.ProviderJWTSecret)
	if err != nil {
		s.logger.Info("access token rejected", "error", err)
		return nil, nil
	}
	snap := session.SnapshotFromClaims(claims)
	if ok {
		if refreshed.User.ID != "" {
			snap = session.SnapshotOf(refreshed.User)
		}
		s.publish(r.Context(), session.NewEvent(session.EventTokenRefreshed, snap, s.now()))
	}
	return &tokens, &snap
}

func sameOrigin(r *http.Request, publicURL string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(o.Host, r.Host) {
		return true
	}
	if p, err := url.Parse(publicURL); err == nil && strings.EqualFold(o.Host, p.Host) {
		return true
	}
	return false
}
