package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daviddozie/flowvahub/internal/validate"
	"github.com/daviddozie/flowvahub/pkg/identity"
)

var (
	// ErrSubmissionInFlight is returned when a form instance is submitted
	// again before its previous provider call settled.
	ErrSubmissionInFlight = errors.New("authflow: submission already in flight")
	// ErrAbandoned is returned when the caller went away while the provider
	// call was outstanding; the result has been discarded.
	ErrAbandoned = errors.New("authflow: submission abandoned")
)

// GenericErrorMessage replaces failures that carry no usable provider message.
const GenericErrorMessage = "Something went wrong. Please try again."

// StillProcessingMessage is shown when a form is resubmitted before its
// previous call settled. The form stays submittable.
const StillProcessingMessage = "Your previous request is still processing. Please try again in a moment."

// Success banners.
const (
	SignUpSuccessMessage         = "Account created successfully! You can now log in."
	ForgotPasswordSuccessMessage = "Password reset link sent. Please check your inbox."
)

// Provider is the slice of the identity provider the auth screens call.
type Provider interface {
	SignUp(ctx context.Context, in identity.SignUpInput) (identity.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error)
	ResetPasswordForEmail(ctx context.Context, email string, opts identity.RecoverOptions) error
	AuthorizeURL(provider string, opts identity.AuthorizeOptions) string
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (identity.Session, error)
}

// Kind names an auth screen.
type Kind string

const (
	KindSignUp         Kind = "signup"
	KindSignIn         Kind = "signin"
	KindForgotPassword Kind = "forgot_password"
	KindCallback       Kind = "callback"
)

// Outcome is how a submission ended, used for logging and metrics.
type Outcome string

const (
	OutcomeRejected  Outcome = "rejected"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeBusy      Outcome = "busy"
	OutcomeAbandoned Outcome = "abandoned"
)

// State is the form lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Form is the state of one rendered form instance.
type Form struct {
	ID      string
	Values  validate.Credentials
	Errors  validate.Errors
	State   State
	Loading bool
	Banner  string
}

// NewForm returns an idle form with a fresh instance id.
func NewForm() Form {
	return Form{ID: uuid.NewString(), Errors: validate.Errors{}}
}

// Observer receives one call per settled submission.
type Observer interface {
	Observe(kind Kind, outcome Outcome)
}

// Options configures a Controller.
type Options struct {
	// CallbackURL is where the provider sends email-link and OAuth redirects.
	CallbackURL string
	// ResetRedirect is where the password reset email links to.
	ResetRedirect string
	// Timeout bounds each provider call. Zero means 10 seconds.
	Timeout  time.Duration
	Observer Observer
}

// Controller runs the auth screens' submit state machine against a Provider.
type Controller struct {
	provider Provider
	logger   *slog.Logger
	opts     Options

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs a Controller.
func New(provider Provider, logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Controller{
		provider: provider,
		logger:   logger,
		opts:     opts,
		inflight: make(map[string]struct{}),
	}
}

// InFlight reports whether the form instance has an outstanding provider call.
func (c *Controller) InFlight(formID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[formID]
	return ok
}

func (c *Controller) acquire(formID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[formID]; busy {
		return false
	}
	c.inflight[formID] = struct{}{}
	return true
}

func (c *Controller) release(formID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, formID)
}

func (c *Controller) observe(kind Kind, outcome Outcome) {
	if c.opts.Observer != nil {
		c.opts.Observer.Observe(kind, outcome)
	}
}

// submit validates f and, when it passes, runs call under the in-flight guard.
// The guard and loading flag are released however call returns.
func (c *Controller) submit(ctx context.Context, kind Kind, f Form, fields []string, call func(context.Context) error) (Form, Outcome, error) {
	if strings.TrimSpace(f.ID) == "" {
		f.ID = uuid.NewString()
	}
	f.Banner = ""
	f.Errors = validate.Form(f.Values, fields...)
	if !f.Errors.OK() {
		f.State = StateIdle
		c.observe(kind, OutcomeRejected)
		return f, OutcomeRejected, nil
	}

	if !c.acquire(f.ID) {
		f.Loading = false
		f.Errors.Set(validate.FieldEmail, StillProcessingMessage)
		c.observe(kind, OutcomeBusy)
		return f, OutcomeBusy, ErrSubmissionInFlight
	}
	defer c.release(f.ID)

	f.State = StateSubmitting
	f.Loading = true
	err := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
		return call(callCtx)
	}()
	f.Loading = false

	if ctxErr := ctx.Err(); ctxErr != nil {
		c.logger.Info("auth submission abandoned", "flow", string(kind), "error", ctxErr)
		c.observe(kind, OutcomeAbandoned)
		return f, OutcomeAbandoned, fmt.Errorf("%w: %v", ErrAbandoned, ctxErr)
	}
	if err != nil {
		c.logger.Warn("auth provider call failed", "flow", string(kind), "error", err)
		f.State = StateFailed
		f.Errors = validate.Errors{validate.FieldEmail: ErrorMessage(err)}
		c.observe(kind, OutcomeFailed)
		return f, OutcomeFailed, nil
	}
	f.State = StateSucceeded
	c.observe(kind, OutcomeSucceeded)
	return f, OutcomeSucceeded, nil
}

// ErrorMessage is the text shown for a failed provider call: the provider's own
// message when it sent one, otherwise GenericErrorMessage.
func ErrorMessage(err error) string {
	var apiErr identity.APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return GenericErrorMessage
}
