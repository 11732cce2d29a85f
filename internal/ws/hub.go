package ws

import (
	"sync"

	"github.com/elevenetc/hris/pkg/logger"
	"github.com/gorilla/websocket"
)

// Hub tracks the websocket connection of each signed-in employee so the
// browser delivery channel can push to them.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*websocket.Conn),
	}
}

// Register associates a connection with a user id, replacing any previous
// connection for the same user.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.Close()
	}
	h.clients[userID] = conn
	h.mu.Unlock()

	logger.Log.WithField("user_id", userID).Info("WebSocket client connected")
}

// Unregister drops the connection for a user if it is still the current one.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if h.clients[userID] == conn {
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	logger.Log.WithField("user_id", userID).Info("WebSocket client disconnected")
}

// Push writes a JSON payload to the user's connection. Returns false when
// the user has no live connection or the write fails.
func (h *Hub) Push(userID string, payload interface{}) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[userID]
	if !ok {
		return false
	}
	if err := conn.WriteJSON(payload); err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Warn("WebSocket push failed")
		conn.Close()
		delete(h.clients, userID)
		return false
	}
	return true
}
