package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/daviddozie/flowvahub/internal/ws"
	"github.com/daviddozie/flowvahub/pkg/identity"
	"github.com/daviddozie/flowvahub/pkg/jwt"
)

// EventType names a session change.
type EventType string

const (
	// EventInitialSession is the first frame a live connection receives.
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Snapshot is the transient view of the signed in user the shell renders.
type Snapshot struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SnapshotOf builds a Snapshot from a provider user. OAuth users carry their
// avatar under "picture" rather than "avatar_url".
func SnapshotOf(u identity.User) Snapshot {
	avatar := u.Metadata("avatar_url")
	if avatar == "" {
		avatar = u.Metadata("picture")
	}
	email := u.Metadata("email")
	if email == "" {
		email = strings.TrimSpace(u.Email)
	}
	return Snapshot{
		ID:        u.ID,
		Email:     email,
		FirstName: u.Metadata("first_name"),
		LastName:  u.Metadata("last_name"),
		AvatarURL: avatar,
	}
}

// SnapshotFromClaims builds a Snapshot from access-token claims.
func SnapshotFromClaims(c *jwt.Claims) Snapshot {
	avatar := c.Metadata("avatar_url")
	if avatar == "" {
		avatar = c.Metadata("picture")
	}
	email := c.Metadata("email")
	if email == "" {
		email = strings.TrimSpace(c.Email)
	}
	return Snapshot{
		ID:        c.UserID(),
		Email:     email,
		FirstName: c.Metadata("first_name"),
		LastName:  c.Metadata("last_name"),
		AvatarURL: avatar,
	}
}

// Event is a session change pushed to every view of that user.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
	User   *Snapshot `json:"user,omitempty"`
	At     time.Time `json:"at"`
}

// NewEvent stamps an event for user at now.
func NewEvent(t EventType, user Snapshot, now time.Time) Event {
	e := Event{Type: t, UserID: user.ID, At: now.UTC()}
	if t != EventSignedOut {
		u := user
		e.User = &u
	}
	return e
}

// Encode serialises the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a wire event.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(payload, &e)
	return e, err
}

// Publisher delivers session events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// HubPublisher delivers events to subscribers of this process only.
type HubPublisher struct {
	hub *ws.Hub
}

// NewHubPublisher wraps hub.
func NewHubPublisher(hub *ws.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish broadcasts e to the subscribers of its user.
func (p *HubPublisher) Publish(_ context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	p.hub.Broadcast(e.UserID, payload)
	return nil
}
