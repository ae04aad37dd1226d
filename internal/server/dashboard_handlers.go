package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/daviddozie/flowvahub/internal/rewards"
	"github.com/daviddozie/flowvahub/internal/session"
	"github.com/daviddozie/flowvahub/internal/shell"
	"github.com/daviddozie/flowvahub/internal/ws"
)

const (
	viewportCookie   = "flowva_vw"
	sseHeartbeat     = 25 * time.Second
	sessionInitLimit = 5 * time.Second
)

func viewportWidth(r *http.Request) int {
	if v := r.URL.Query().Get("width"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if c, err := r.Cookie(viewportCookie); err == nil {
		if n, err := strconv.Atoi(c.Value); err == nil {
			return n
		}
	}
	return 0
}

func (s *Server) referral(user *session.Snapshot) rewards.Referral {
	var id, email string
	if user != nil {
		id, email = user.ID, user.Email
	}
	ref, err := rewards.NewReferral(s.cfg.ReferralBaseURL, id, email)
	if err != nil {
		s.logger.Error("build referral link failed", "error", err)
	}
	return ref
}

func (s *Server) shellData(r *http.Request, user *session.Snapshot, title string) map[string]any {
	return map[string]any{
		"Title":     title,
		"Shell":     shell.NewView(r.URL.Path, user, viewportWidth(r)),
		"SignedIn":  user != nil,
		"ViewportW": viewportCookie,
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	_, user := s.currentSession(w, r)
	s.render(w, r, http.StatusOK, "dashboard.html", s.shellData(r, user, "Dashboard"))
}

func (s *Server) handleEarnRewards(w http.ResponseWriter, r *http.Request) {
	_, user := s.currentSession(w, r)
	data := s.shellData(r, user, "Rewards Hub")
	tab := rewards.ParseTab(r.URL.Query().Get("tab"))
	data["Tab"] = tab
	data["Tabs"] = []rewards.Tab{rewards.TabEarn, rewards.TabRedeem}
	if tab == rewards.TabRedeem {
		data["Redeem"] = s.catalogue.RedeemView(rewards.ParseFilter(r.URL.Query().Get("filter")))
	} else {
		earn, err := s.catalogue.EarnView(s.now(), s.referral(user))
		if err != nil {
			s.logger.Error("build earn view failed", "error", err)
			s.renderError(w, r, http.StatusInternalServerError, "Rewards are unavailable right now")
			return
		}
		data["Earn"] = earn
	}
	s.render(w, r, http.StatusOK, "earn_rewards.html", data)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	_, user := s.currentSession(w, r)
	ref := s.referral(user)
	target, err := rewards.ShareURL(mux.Vars(r)["platform"], ref.Link)
	if err != nil {
		s.renderError(w, r, http.StatusNotFound, "Unknown share platform")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// openStore resolves the session on r into a Store registered on the hub.
func (s *Server) openStore(w http.ResponseWriter, r *http.Request) (*session.Store, session.Snapshot, bool) {
	tokens, _ := s.currentSession(w, r)
	if tokens == nil {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return nil, session.Snapshot{}, false
	}
	store := session.NewStore(s.identity, s.hub, s.logger)
	ctx, cancel := context.WithTimeout(r.Context(), sessionInitLimit)
	defer cancel()
	user, err := store.Init(ctx, tokens.AccessToken)
	if err != nil {
		store.Close()
		s.logger.Info("session store init failed", "error", err)
		writeError(w, http.StatusUnauthorized, "session unavailable")
		return nil, session.Snapshot{}, false
	}
	return store, user, true
}

// shellMessage is what the shell's live connection pushes to the browser.
type shellMessage struct {
	Type    string         `json:"type"`
	Profile *shell.Profile `json:"profile,omitempty"`
	Layout  *shell.Layout  `json:"layout,omitempty"`
}

// shellCommand is what the browser sends over the live connection.
type shellCommand struct {
	Type  string `json:"type"`
	Width int    `json:"width,omitempty"`
}

func profileMessage(kind string, user *session.Snapshot) shellMessage {
	p := shell.NewProfile(user)
	return shellMessage{Type: kind, Profile: &p}
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	store, user, ok := s.openStore(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		store.Close()
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, s.logger)
	layout := shell.NewLayout(viewportWidth(r))

	initial := profileMessage(string(session.EventInitialSession), &user)
	initial.Layout = &layout
	if err := client.SendJSON(initial); err != nil {
		store.Close()
		client.Close()
		return
	}
	store.Subscribe(func(e session.Event) {
		current, ok := store.User()
		msg := profileMessage(string(e.Type), nil)
		if ok {
			msg = profileMessage(string(e.Type), &current)
		}
		_ = client.SendJSON(msg)
	})

	go func() {
		defer func() {
			store.Close()
			client.Close()
		}()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd shellCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				continue
			}
			switch cmd.Type {
			case "resize":
				layout.Resize(cmd.Width)
			case "toggle":
				layout.Toggle()
			case "navigate":
				layout.Navigate()
			default:
				continue
			}
			current := layout
			if err := client.SendJSON(shellMessage{Type: "LAYOUT", Layout: &current}); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	store, user, ok := s.openStore(w, r)
	if !ok {
		return
	}
	client := ws.NewSSEClient(w, "session", s.logger)
	defer client.Close()
	defer store.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial, err := json.Marshal(session.NewEvent(session.EventInitialSession, user, s.now()))
	if err != nil {
		return
	}
	if err := client.Send(initial); err != nil {
		return
	}
	store.Subscribe(func(e session.Event) {
		payload, err := e.Encode()
		if err != nil {
			return
		}
		_ = client.Send(payload)
	})

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if client.Closed() {
				return
			}
			if time.Since(client.LastActivity()) < sseHeartbeat/2 {
				continue
			}
			if err := client.Heartbeat(); err != nil {
				s.logger.Debug("sse heartbeat stopped", "error", err)
				return
			}
		}
	}
}
