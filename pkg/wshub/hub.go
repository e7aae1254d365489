// Package wshub fans out journal append events to connected websocket
// viewers in realtime, and relays their chat input into a session.
package wshub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mariozechner/agentcore/pkg/journal"
)

// Prompter drives new chat input into a session. The Hub calls it once per
// non-empty inbound text frame; what it does with the text is up to the
// caller that constructs the Hub.
type Prompter func(ctx context.Context, sessionID, text string) error

// Hub upgrades incoming requests to websockets, one per session ID in the
// request path, and keeps each connection synced with its session's
// journal via Manager.Subscribe.
type Hub struct {
	mgr      *journal.Manager
	prompt   Prompter
	upgrader websocket.Upgrader
}

// New returns a Hub backed by mgr, relaying inbound chat text via prompt.
func New(mgr *journal.Manager, prompt Prompter) *Hub {
	return &Hub{
		mgr:    mgr,
		prompt: prompt,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeSession upgrades r to a websocket streaming sessionID's journal and
// accepting chat input from the client.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("wshub: upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	sess, err := h.mgr.LoadSession(sessionID)
	if err != nil {
		slog.Error("wshub: load session failed", "id", sessionID, "error", err)
		ws.WriteJSON(map[string]string{"error": "session not found"})
		return
	}
	defer sess.Close()

	sent := make(map[string]bool)
	if err := h.sync(ws, sess, sent); err != nil {
		slog.Error("wshub: initial sync failed", "error", err)
		return
	}

	done := make(chan struct{})
	updates := h.mgr.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case changedID, ok := <-updates:
				if !ok {
					return
				}
				if changedID != sessionID {
					continue
				}
				if err := h.sync(ws, sess, sent); err != nil {
					slog.Error("wshub: resync failed", "error", err)
					return
				}
			case <-ticker.C:
			}
		}
	}()

	for {
		var msg struct {
			Text string `json:"text"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			slog.Error("wshub: read error", "error", err)
			break
		}
		if msg.Text == "" {
			continue
		}
		if err := h.prompt(r.Context(), sessionID, msg.Text); err != nil {
			ws.WriteJSON(map[string]string{"error": err.Error()})
		}
	}

	close(done)
	wg.Wait()
}

// sync pushes every journal entry not yet in sent, in order, to ws.
func (h *Hub) sync(ws *websocket.Conn, sess *journal.Session, sent map[string]bool) error {
	// sess is the Hub's own handle on the file; appends made through any
	// other Session for the same ID only reach it by re-reading the file.
	if err := sess.Refresh(); err != nil {
		return fmt.Errorf("wshub: refresh: %w", err)
	}
	entries, err := sess.GetContext()
	if err != nil {
		return fmt.Errorf("wshub: get context: %w", err)
	}
	for _, e := range entries {
		if sent[e.ID] {
			continue
		}
		if err := ws.WriteJSON(e); err != nil {
			return err
		}
		sent[e.ID] = true
	}
	return nil
}
