package shell

// Breakpoint is the narrowest viewport, in CSS pixels, that gets the desktop layout.
const Breakpoint = 768

// Mode is the layout mode for a viewport.
type Mode string

const (
	ModeDesktop Mode = "desktop"
	ModeMobile  Mode = "mobile"
)

// ModeFor returns the layout mode for a viewport width.
func ModeFor(width int) Mode {
	if width >= Breakpoint {
		return ModeDesktop
	}
	return ModeMobile
}

// Layout tracks sidebar visibility for one mounted shell.
type Layout struct {
	Mode        Mode `json:"mode"`
	SidebarOpen bool `json:"sidebar_open"`
}

// NewLayout returns the initial layout for width. The sidebar starts open on
// desktop and closed on mobile. A width of zero or less means unknown and is
// treated as desktop.
func NewLayout(width int) Layout {
	if width <= 0 {
		width = Breakpoint
	}
	mode := ModeFor(width)
	return Layout{Mode: mode, SidebarOpen: mode == ModeDesktop}
}

// Resize applies a new viewport width. Crossing the breakpoint resets the
// sidebar to the new mode's default; staying in the same mode keeps it.
func (l *Layout) Resize(width int) bool {
	mode := ModeFor(width)
	if mode == l.Mode {
		return false
	}
	l.Mode = mode
	l.SidebarOpen = mode == ModeDesktop
	return true
}

// Toggle flips the sidebar.
func (l *Layout) Toggle() {
	l.SidebarOpen = !l.SidebarOpen
}

// Navigate applies a nav link click: on mobile the sidebar closes.
func (l *Layout) Navigate() {
	if l.Mode == ModeMobile {
		l.SidebarOpen = false
	}
}

// Overlay reports whether the dimming overlay is shown behind the sidebar.
func (l Layout) Overlay() bool {
	return l.Mode == ModeMobile && l.SidebarOpen
}
