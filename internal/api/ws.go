package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sprite-ai/revu/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev; restrict in production
	},
}

// WebSocket message types to client.
const (
	wsMsgSession = "session"
	wsMsgEvent   = "event"
)

// wsMessage is the envelope for WebSocket messages.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsEvent is the payload for "event" messages.
type wsEvent struct {
	Phase   session.Phase `json:"phase"`
	Kind    string        `json:"kind,omitempty"`
	Message string        `json:"message,omitempty"`
}

// hub fans controller events out to the websocket subscribers of one
// session. Broadcast never blocks; a subscriber that falls behind loses
// events rather than stalling the workflow.
type hub struct {
	mu     sync.Mutex
	subs   map[chan session.Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan session.Event]struct{})}
}

// subscribe registers a new event channel. The returned func removes it.
func (h *hub) subscribe() (<-chan session.Event, func()) {
	ch := make(chan session.Event, 16)

	h.mu.Lock()
	if h.closed {
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) broadcast(ev session.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// closeAll closes every subscriber channel. Used when the session is
// discarded; subscribers see the channel close and hang up.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.lookup(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "", "no such session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "id", id, "err", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := entry.hub.subscribe()
	defer unsubscribe()

	// Reader exists only to notice the client hanging up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current state first, then the event stream.
	s.sendWS(conn, wsMsgSession, sessionResponse(id, entry.ctrl))

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.sendWS(conn, wsMsgEvent, wsEvent{
				Phase:   ev.Phase,
				Kind:    string(ev.Kind),
				Message: ev.Message,
			})
		case <-done:
			return
		}
	}
}

func (s *Server) sendWS(conn *websocket.Conn, msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("ws marshal", "err", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		s.logger.Warn("ws write", "err", err)
	}
}
