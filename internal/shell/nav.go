// Package shell is the dashboard frame: navigation, the signed in user's
// profile block and the responsive sidebar layout.
package shell

// NavItem is one sidebar entry.
type NavItem struct {
	Name   string
	Icon   string
	Href   string
	Active bool
}

var navItems = []NavItem{
	{Name: "Home", Icon: "home", Href: "/dashboard"},
	{Name: "Discover", Icon: "discover", Href: "/dashboard/discover"},
	{Name: "Library", Icon: "library", Href: "/dashboard/library"},
	{Name: "Tech Stack", Icon: "stack", Href: "/dashboard/tech-stack"},
	{Name: "Subscription", Icon: "subscription", Href: "/dashboard/subscription"},
	{Name: "Rewards Hub", Icon: "rewards", Href: "/dashboard/earn-rewards"},
	{Name: "Settings", Icon: "settings", Href: "/dashboard/settings"},
}

// Nav returns the sidebar entries with the one matching path marked active.
// Matching is exact.
func Nav(path string) []NavItem {
	items := make([]NavItem, len(navItems))
	copy(items, navItems)
	for i := range items {
		items[i].Active = items[i].Href == path
	}
	return items
}
