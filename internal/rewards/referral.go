package rewards

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// ErrUnknownPlatform is returned for share targets other than Platforms.
var ErrUnknownPlatform = errors.New("rewards: unknown share platform")

// ShareText accompanies every shared referral link.
const ShareText = "Check out Flowva Hub!"

// CopiedStateTTL is how long the copy button shows its confirmation.
const CopiedStateTTL = 2 * time.Second

// Platforms lists share targets in display order.
var Platforms = []string{"facebook", "twitter", "linkedin", "whatsapp"}

const maxCodePrefix = 12

// Referral is the user's personal referral link and its share targets.
type Referral struct {
	Code     string
	Link     string
	CopiedMS int64
	Shares   []Share
}

// Share is one share button.
type Share struct {
	Platform string
	Title    string
	URL      string
}

// ReferralCode derives a stable code from the user's email and id. Users
// without either get "guest".
func ReferralCode(userID, email string) string {
	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	var b strings.Builder
	for _, r := range local {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
		if b.Len() == maxCodePrefix {
			break
		}
	}
	if b.Len() == 0 || strings.TrimSpace(userID) == "" {
		return "guest"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return fmt.Sprintf("%s%04d", b.String(), h.Sum32()%10000)
}

// ReferralLink appends ref=code to base.
func ReferralLink(base, code string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("ref", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewReferral builds the referral block for a user.
func NewReferral(base, userID, email string) (Referral, error) {
	code := ReferralCode(userID, email)
	link, err := ReferralLink(base, code)
	if err != nil {
		return Referral{}, err
	}
	shares := make([]Share, 0, len(Platforms))
	for _, p := range Platforms {
		target, _ := ShareURL(p, link)
		shares = append(shares, Share{Platform: p, Title: "Share on " + strings.ToUpper(p[:1]) + p[1:], URL: target})
	}
	return Referral{Code: code, Link: link, CopiedMS: CopiedStateTTL.Milliseconds(), Shares: shares}, nil
}

// encodeComponent percent-encodes s for use inside a query value, spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// ShareURL is the platform's share endpoint for link.
func ShareURL(platform, link string) (string, error) {
	switch platform {
	case "facebook":
		return "https://www.facebook.com/sharer/sharer.php?u=" + encodeComponent(link), nil
	case "twitter":
		return "https://twitter.com/intent/tweet?text=" + encodeComponent(ShareText) + "&url=" + encodeComponent(link), nil
	case "linkedin":
		return "https://www.linkedin.com/sharing/share-offsite/?url=" + encodeComponent(link), nil
	case "whatsapp":
		return "https://wa.me/?text=" + encodeComponent(ShareText+" "+link), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
}
