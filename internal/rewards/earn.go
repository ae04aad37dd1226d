package rewards

import (
	"html/template"
	"time"
)

// WeekDays labels the streak strip, Monday first.
var WeekDays = []string{"M", "T", "W", "T", "F", "S", "S"}

// Day is one cell of the streak strip.
type Day struct {
	Label string
	Today bool
}

// DayIndex is the Monday-based index of now's weekday.
func DayIndex(now time.Time) int {
	return (int(now.Weekday()) + 6) % 7
}

// Week returns the streak strip with today marked.
func Week(now time.Time) []Day {
	today := DayIndex(now)
	days := make([]Day, len(WeekDays))
	for i, label := range WeekDays {
		days[i] = Day{Label: label, Today: i == today}
	}
	return days
}

// Earn is the earn-points view model.
type Earn struct {
	Points         int
	Goal           int
	GoalLabel      string
	Progress       float64
	Streak         int
	Referrals      int
	PointsEarned   int
	CheckInPoints  int
	ReferralPoints int
	Week           []Day
	Spotlight      Spotlight
	SpotlightHTML  template.HTML
	Promos         []Promo
	Referral       Referral
}

// Progress is points as a percentage of goal, capped at 100.
func Progress(points, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	p := float64(points) / float64(goal) * 100
	if p > 100 {
		return 100
	}
	return p
}

// EarnView builds the earn tab at now for the given referral.
func (c *Catalogue) EarnView(now time.Time, ref Referral) (Earn, error) {
	e := c.Earn
	spotlight, err := renderMarkdown(e.Spotlight.Body)
	if err != nil {
		return Earn{}, err
	}
	return Earn{
		Points:         e.Points,
		Goal:           e.Goal,
		GoalLabel:      e.GoalLabel,
		Progress:       Progress(e.Points, e.Goal),
		Streak:         e.Streak,
		Referrals:      e.Referrals,
		PointsEarned:   e.PointsEarned,
		CheckInPoints:  e.CheckInPoints,
		ReferralPoints: e.ReferralPoints,
		Week:           Week(now),
		Spotlight:      e.Spotlight,
		SpotlightHTML:  spotlight,
		Promos:         append([]Promo(nil), e.Promos...),
		Referral:       ref,
	}, nil
}

// Redeem is the redeem-rewards view model.
type Redeem struct {
	Filter  Filter
	Tabs    []FilterTab
	Rewards []Reward
}

// FilterTab is one filter button with its count.
type FilterTab struct {
	Filter Filter
	Label  string
	Count  int
	Active bool
}

// RedeemView builds the redeem tab for f.
func (c *Catalogue) RedeemView(f Filter) Redeem {
	counts := c.Counts()
	tabs := make([]FilterTab, len(Filters))
	for i, flt := range Filters {
		tabs[i] = FilterTab{Filter: flt, Label: flt.Label(), Count: counts[flt], Active: flt == f}
	}
	return Redeem{Filter: f, Tabs: tabs, Rewards: c.Filter(f)}
}

// Tab is the top-level Rewards Hub tab.
type Tab string

const (
	TabEarn   Tab = "earn"
	TabRedeem Tab = "redeem"
)

// ParseTab maps a query value to a Tab, defaulting to earn.
func ParseTab(s string) Tab {
	if Tab(s) == TabRedeem {
		return TabRedeem
	}
	return TabEarn
}

// Label is the tab text.
func (t Tab) Label() string {
	if t == TabRedeem {
		return "Redeem Rewards"
	}
	return "Earn Points"
}
