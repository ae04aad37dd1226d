// Package rewards builds the Rewards Hub views: the earn summary, referral
// sharing and the redemption catalogue. Everything is static and read-only.
package rewards

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

// Status is a reward's availability.
type Status string

const (
	StatusLocked     Status = "locked"
	StatusUnlocked   Status = "unlocked"
	StatusComingSoon Status = "coming-soon"
)

// Reward is one redeemable item.
type Reward struct {
	ID          int    `yaml:"id"`
	Icon        string `yaml:"icon"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Points      int    `yaml:"points"`
	Status      Status `yaml:"status"`
}

// Redeemable reports whether the reward can be redeemed.
func (r Reward) Redeemable() bool {
	return r.Status == StatusUnlocked
}

// ActionLabel is the text of the reward's action button.
func (r Reward) ActionLabel() string {
	return ActionLabel(r.Status)
}

// ActionLabel maps a status to its button text.
func ActionLabel(s Status) string {
	switch s {
	case StatusComingSoon:
		return "Coming Soon"
	case StatusUnlocked:
		return "Redeem"
	default:
		return "Locked"
	}
}

// Spotlight is the featured tool card.
type Spotlight struct {
	Name        string `yaml:"name"`
	Headline    string `yaml:"headline"`
	Body        string `yaml:"body"`
	ClaimPoints int    `yaml:"claim_points"`
}

// Promo is an "Earn More Points" card. Body is markdown.
type Promo struct {
	Title    string        `yaml:"title"`
	Subtitle string        `yaml:"subtitle"`
	Body     string        `yaml:"body"`
	HTML     template.HTML `yaml:"-"`
}

type earnContent struct {
	Points         int       `yaml:"points"`
	Goal           int       `yaml:"goal"`
	GoalLabel      string    `yaml:"goal_label"`
	Streak         int       `yaml:"streak"`
	Referrals      int       `yaml:"referrals"`
	PointsEarned   int       `yaml:"points_earned"`
	CheckInPoints  int       `yaml:"check_in_points"`
	ReferralPoints int       `yaml:"referral_points"`
	Spotlight      Spotlight `yaml:"spotlight"`
	Promos         []Promo   `yaml:"promos"`
}

// Catalogue is the parsed static content.
type Catalogue struct {
	Rewards []Reward    `yaml:"rewards"`
	Earn    earnContent `yaml:"earn"`
}

// Load parses the embedded catalogue.
func Load() (*Catalogue, error) {
	return Parse(catalogueYAML)
}

// Parse decodes and checks a catalogue document, rendering promo markdown.
func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	seen := make(map[int]struct{}, len(c.Rewards))
	for _, r := range c.Rewards {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("duplicate reward id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
		switch r.Status {
		case StatusLocked, StatusUnlocked, StatusComingSoon:
		default:
			return nil, fmt.Errorf("reward %d: unknown status %q", r.ID, r.Status)
		}
	}
	for i := range c.Earn.Promos {
		html, err := renderMarkdown(c.Earn.Promos[i].Body)
		if err != nil {
			return nil, fmt.Errorf("promo %q: %w", c.Earn.Promos[i].Title, err)
		}
		c.Earn.Promos[i].HTML = html
	}
	return &c, nil
}

func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(strings.TrimSpace(src)), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Filter selects rewards in the redeem view.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterUnlocked   Filter = "unlocked"
	FilterLocked     Filter = "locked"
	FilterComingSoon Filter = "coming-soon"
)

// Filters lists the redeem view tabs in display order.
var Filters = []Filter{FilterAll, FilterUnlocked, FilterLocked, FilterComingSoon}

// ParseFilter maps a query value to a Filter; anything unknown is FilterAll.
func ParseFilter(s string) Filter {
	for _, f := range Filters {
		if string(f) == strings.TrimSpace(strings.ToLower(s)) {
			return f
		}
	}
	return FilterAll
}

// Label is the tab text.
func (f Filter) Label() string {
	switch f {
	case FilterUnlocked:
		return "Unlocked"
	case FilterLocked:
		return "Locked"
	case FilterComingSoon:
		return "Coming Soon"
	default:
		return "All Rewards"
	}
}

// Filter returns the rewards matching f in catalogue order.
func (c *Catalogue) Filter(f Filter) []Reward {
	if f == FilterAll {
		return append([]Reward(nil), c.Rewards...)
	}
	var out []Reward
	for _, r := range c.Rewards {
		if string(r.Status) == string(f) {
			out = append(out, r)
		}
	}
	return out
}

// Counts returns how many rewards each filter shows.
func (c *Catalogue) Counts() map[Filter]int {
	counts := map[Filter]int{FilterAll: len(c.Rewards)}
	for _, f := range Filters[1:] {
		counts[f] = 0
	}
	for _, r := range c.Rewards {
		counts[Filter(r.Status)]++
	}
	return counts
}
