package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventNewNotification is the websocket event carrying a stored notification
const EventNewNotification = "new_notification"

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub tracks websocket connections per user. A user may hold several.
type Hub struct {
	mutex   sync.Mutex
	clients map[string]map[*client]struct{}
}

// NewHub returns an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]struct{})}
}

// Serve upgrades the request and keeps the connection registered for userID
// until the peer goes away. The caller authenticates userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}
	h.add(userID, c)
	zap.S().Debugw("user connected to notifications", "userId", userID)

	defer func() {
		h.remove(userID, c)
		conn.Close()
		zap.S().Debugw("user disconnected from notifications", "userId", userID)
	}()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// Send writes an event to every connection of userID and reports whether
// any connection received it
func (h *Hub) Send(userID, event string, data interface{}) bool {
	h.mutex.Lock()
	conns := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mutex.Unlock()

	sent := false
	for _, c := range conns {
		err := c.write(map[string]interface{}{
			"event": event,
			"data":  data,
		})
		if err != nil {
			zap.S().Debugw("dropping websocket connection", "userId", userID, "error", err)
			h.remove(userID, c)
			c.conn.Close()
			continue
		}
		sent = true
	}
	return sent
}

// Connected returns how many connections userID holds
func (h *Hub) Connected(userID string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients[userID])
}

func (h *Hub) add(userID string, c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
}

func (h *Hub) remove(userID string, c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.clients[userID], c)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}
