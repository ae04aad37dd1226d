package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/daviddozie/flowvahub/internal/ws"
	"github.com/daviddozie/flowvahub/pkg/identity"
)

// UserSource resolves the user behind an access token.
type UserSource interface {
	GetUser(ctx context.Context, accessToken string) (identity.User, error)
}

// Store holds the current user for one mounted view and notifies subscribers
// when the session changes. Close releases every subscription it holds.
type Store struct {
	users  UserSource
	hub    *ws.Hub
	logger *slog.Logger

	mu     sync.Mutex
	user   *Snapshot
	topic  string
	subs   map[int]func(Event)
	nextID int
	link   *storeLink
	closed bool
}

// storeLink is what the hub holds; the hub may close it from its own goroutine.
type storeLink struct {
	store *Store
}

func (l *storeLink) Send(payload []byte) error {
	l.store.deliver(payload)
	return nil
}

func (l *storeLink) Close() {}

// NewStore returns an empty store.
func NewStore(users UserSource, hub *ws.Hub, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{users: users, hub: hub, logger: logger, subs: make(map[int]func(Event))}
}

// Init fetches the user behind accessToken and starts listening for changes
// to that user's session.
func (s *Store) Init(ctx context.Context, accessToken string) (Snapshot, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Snapshot{}, ErrNoSession
	}
	u, err := s.users.GetUser(ctx, accessToken)
	if err != nil {
		return Snapshot{}, err
	}
	snap := SnapshotOf(u)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return snap, ErrNoSession
	}
	s.user = &snap
	register := s.link == nil && snap.ID != "" && s.hub != nil
	if register {
		s.topic = snap.ID
		s.link = &storeLink{store: s}
	}
	link, topic := s.link, s.topic
	s.mu.Unlock()

	if register {
		s.hub.Register(topic, link)
	}
	return snap, nil
}

// User returns the current snapshot and whether a user is signed in.
func (s *Store) User() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return Snapshot{}, false
	}
	return *s.user, true
}

// Subscribe registers fn for session changes and returns its unsubscribe func.
// fn runs on the hub goroutine and must not block.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Subscribers reports how many callbacks are registered.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) deliver(payload []byte) {
	e, err := DecodeEvent(payload)
	if err != nil {
		s.logger.Warn("ignoring malformed session event", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch {
	case e.Type == EventSignedOut:
		s.user = nil
	case e.User != nil:
		u := *e.User
		s.user = &u
	}
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Close drops every subscriber and leaves the hub. It is safe to call twice.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[int]func(Event))
	link, topic := s.link, s.topic
	s.link = nil
	s.mu.Unlock()

	if link != nil {
		s.hub.Unregister(topic, link)
	}
}
