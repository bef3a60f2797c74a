package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/m4xw311/strudelgate/bridge"
	"github.com/m4xw311/strudelgate/widget"
)

const (
	wsSendBuffer = 16
	wsWriteWait  = 10 * time.Second
)

type wsMessage struct {
	Type   string            `json:"type"` // "view" or "widget"
	View   *bridge.View      `json:"view,omitempty"`
	Widget string            `json:"widget,omitempty"`
	Form   *widget.FormState `json:"form,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// wsHub fans messages out to connected clients. A client that cannot keep up
// is disconnected rather than slowing down the others.
type wsHub struct {
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{logger: logger, clients: make(map[*wsClient]struct{})}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *wsHub) broadcast(msg wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("websocket client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleWS streams the bridge view and widget updates. The current view is
// sent first so a client never starts from an empty state.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan wsMessage, wsSendBuffer)}
	view := s.bridge.Snapshot()
	c.send <- wsMessage{Type: "view", View: &view}
	s.hub.add(c)

	go s.writePump(c)

	// Incoming messages are not used; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(c)
}

func (s *Server) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			s.hub.remove(c)
			break
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}
