package config

import (
	"errors"
	"strings"
	"time"
)

// WebConfig holds runtime configuration for the web front-end.
type WebConfig struct {
	Environment           string
	Addr                  string
	PublicURL             string
	LogLevel              string
	ProviderURL           string
	ProviderPublicKey     string
	ProviderJWTSecret     string
	ProviderTimeout       time.Duration
	SessionSecret         string
	SessionCookieName     string
	CookieSecure          bool
	CSRFKey               string
	CSRFTrustedOrigins    []string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SessionEventsChannel  string
	ReferralBaseURL       string
	PasswordResetRedirect string
}

// LoadWebConfig constructs a WebConfig from environment variables.
func LoadWebConfig() WebConfig {
	publicURL := strings.TrimRight(GetString("PUBLIC_URL", "http://localhost:3000"), "/")
	return WebConfig{
		Environment:           GetString("APP_ENV", "development"),
		Addr:                  GetString("WEB_ADDR", ":3000"),
		PublicURL:             publicURL,
		LogLevel:              GetString("LOG_LEVEL", "info"),
		ProviderURL:           GetString("PROVIDER_URL", ""),
		ProviderPublicKey:     GetString("PROVIDER_PUBLIC_KEY", ""),
		ProviderJWTSecret:     GetString("PROVIDER_JWT_SECRET", ""),
		ProviderTimeout:       GetSeconds("PROVIDER_TIMEOUT_SECONDS", 10),
		SessionSecret:         GetString("SESSION_SECRET", ""),
		SessionCookieName:     GetString("SESSION_COOKIE_NAME", "flowva_session"),
		CookieSecure:          GetBool("COOKIE_SECURE", false),
		CSRFKey:               GetString("CSRF_KEY", ""),
		CSRFTrustedOrigins:    GetList("CSRF_TRUSTED_ORIGINS", nil),
		RedisAddr:             GetString("REDIS_ADDR", ""),
		RedisPassword:         GetString("REDIS_PASSWORD", ""),
		RedisDB:               GetInt("REDIS_DB", 0),
		SessionEventsChannel:  GetString("SESSION_EVENTS_CHANNEL", "flowva:session-events"),
		ReferralBaseURL:       GetString("REFERRAL_BASE_URL", "https://app.flowvahub.com/signup"),
		PasswordResetRedirect: GetString("PASSWORD_RESET_REDIRECT", publicURL+"/reset-password"),
	}
}

// CallbackURL is the fixed redirect target handed to the provider for email links and OAuth.
func (c WebConfig) CallbackURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/auth/callback"
}

// Validate reports the settings the server cannot start without.
func (c WebConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ProviderURL) == "" {
		errs = append(errs, errors.New("PROVIDER_URL must be configured"))
	}
	if strings.TrimSpace(c.ProviderPublicKey) == "" {
		errs = append(errs, errors.New("PROVIDER_PUBLIC_KEY must be configured"))
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		errs = append(errs, errors.New("SESSION_SECRET must be configured"))
	}
	if c.CSRFKey != "" && len(c.CSRFKey) != 32 {
		errs = append(errs, errors.New("CSRF_KEY must be exactly 32 bytes"))
	}
	return errors.Join(errs...)
}
