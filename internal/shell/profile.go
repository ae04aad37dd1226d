package shell

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/daviddozie/flowvahub/internal/session"
)

// FallbackName is shown when no name can be derived.
const FallbackName = "User"

const shortNameLength = 5

// Profile is the user block at the bottom of the sidebar.
type Profile struct {
	DisplayName string
	ShortName   string
	Email       string
	Initials    string
	AvatarURL   string
}

// NewProfile derives the profile block from a session snapshot. A nil user
// yields the fallback profile.
func NewProfile(user *session.Snapshot) Profile {
	if user == nil {
		return Profile{DisplayName: FallbackName, ShortName: FallbackName, Initials: Initials("")}
	}
	return Profile{
		DisplayName: DisplayName(user.FirstName, user.LastName),
		ShortName:   ShortName(user.Email),
		Email:       user.Email,
		Initials:    Initials(user.Email),
		AvatarURL:   user.AvatarURL,
	}
}

// DisplayName joins first and last name, falling back to "User".
func DisplayName(first, last string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return FallbackName
	}
	return name
}

// ShortName is the first five characters of email with the first one
// upper-cased, or "User" when email is empty.
func ShortName(email string) string {
	if email == "" {
		return FallbackName
	}
	runes := []rune(email)
	if len(runes) > shortNameLength {
		runes = runes[:shortNameLength]
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Initials takes the first letter of up to two segments of the email's local
// part, split on dots, dashes and underscores. An empty email gives "U".
func Initials(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == '+'
	})
	if len(parts) == 0 {
		return "U"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	var b strings.Builder
	for _, p := range parts {
		r, _ := utf8.DecodeRuneInString(p)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
