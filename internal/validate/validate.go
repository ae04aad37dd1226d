// Package validate holds the credential field rules shared by every auth screen.
// Each rule is a pure function of the field value (and, for confirmPassword,
// the password it must match).
package validate

import (
	"regexp"
	"unicode/utf16"
)

// Field names as they appear in forms and in the error map.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
)

// MinPasswordLength is the only password strength rule.
const MinPasswordLength = 8

// Messages are user-facing and must stay byte-for-byte stable.
const (
	MsgEmailRequired           = "Email is required"
	MsgEmailInvalid            = "Enter a valid email address"
	MsgPasswordRequired        = "Password is required"
	MsgPasswordTooShort        = "Password must be at least 8 characters"
	MsgConfirmPasswordRequired = "Please confirm your password"
	MsgPasswordMismatch        = "Passwords do not match"
)

var emailPattern = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9-]+(?:\\.[a-zA-Z0-9-]+)+$")

// Field sets per screen.
var (
	SignUpFields         = []string{FieldEmail, FieldPassword, FieldConfirmPassword}
	SignInFields         = []string{FieldEmail, FieldPassword}
	ForgotPasswordFields = []string{FieldEmail}
)

// DependentFields lists, per field, the other fields whose errors are re-checked
// when it changes. confirmPassword is not re-checked when password changes after
// the fact; the entry stays empty so that behaviour is visible here.
var DependentFields = map[string][]string{
	FieldPassword: nil,
}

// Credentials is the transient credential input of one form.
type Credentials struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// Value returns the current value of the named field.
func (c Credentials) Value(field string) string {
	switch field {
	case FieldEmail:
		return c.Email
	case FieldPassword:
		return c.Password
	case FieldConfirmPassword:
		return c.ConfirmPassword
	}
	return ""
}

// Email validates an email address.
func Email(value string) string {
	if value == "" {
		return MsgEmailRequired
	}
	if !emailPattern.MatchString(value) {
		return MsgEmailInvalid
	}
	return ""
}

// Password validates a password. Length is measured in UTF-16 code units,
// the way browsers measure string length.
func Password(value string) string {
	if value == "" {
		return MsgPasswordRequired
	}
	if Length(value) < MinPasswordLength {
		return MsgPasswordTooShort
	}
	return ""
}

// ConfirmPassword validates the confirmation against the current password.
func ConfirmPassword(value, password string) string {
	if value == "" {
		return MsgConfirmPasswordRequired
	}
	if value != password {
		return MsgPasswordMismatch
	}
	return ""
}

// Length counts UTF-16 code units.
func Length(value string) int {
	return len(utf16.Encode([]rune(value)))
}

// Field validates one named field against the credentials it belongs to.
// Unknown field names never produce an error.
func Field(name string, c Credentials) string {
	switch name {
	case FieldEmail:
		return Email(c.Email)
	case FieldPassword:
		return Password(c.Password)
	case FieldConfirmPassword:
		return ConfirmPassword(c.ConfirmPassword, c.Password)
	}
	return ""
}

// Form validates every listed field independently and returns the complete
// error map. Valid fields map to "".
func Form(c Credentials, fields ...string) Errors {
	errs := make(Errors, len(fields))
	for _, name := range fields {
		errs[name] = Field(name, c)
	}
	return errs
}

// Errors maps field names to messages. An empty or missing entry means the
// field is valid.
type Errors map[string]string

// Valid reports whether field has no error.
func (e Errors) Valid(field string) bool {
	return e[field] == ""
}

// OK reports whether every field is valid.
func (e Errors) OK() bool {
	for _, msg := range e {
		if msg != "" {
			return false
		}
	}
	return true
}

// Get returns the message for field, or "".
func (e Errors) Get(field string) string {
	return e[field]
}

// Set records msg against field.
func (e Errors) Set(field, msg string) {
	e[field] = msg
}

// Affected returns field followed by its DependentFields: the fields whose
// errors must be recomputed after field changes.
func Affected(field string) []string {
	return append([]string{field}, DependentFields[field]...)
}

// Changed recomputes the errors of every field affected by a change to field.
func Changed(field string, c Credentials) Errors {
	return Form(c, Affected(field)...)
}
