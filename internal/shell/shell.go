package shell

import "github.com/daviddozie/flowvahub/internal/session"

// Title and subtitle of the dashboard header.
const (
	HeaderTitle    = "Rewards Hub"
	HeaderSubtitle = "Earn points, unlock rewards, and celebrate your progress!"
)

// View is everything the dashboard frame template renders.
type View struct {
	Nav      []NavItem
	Profile  Profile
	Layout   Layout
	Title    string
	Subtitle string
}

// NewView builds the frame for path. user may be nil.
func NewView(path string, user *session.Snapshot, width int) View {
	return View{
		Nav:      Nav(path),
		Profile:  NewProfile(user),
		Layout:   NewLayout(width),
		Title:    HeaderTitle,
		Subtitle: HeaderSubtitle,
	}
}
