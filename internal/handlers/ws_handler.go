package handlers

import (
	"net/http"

	"github.com/elevenetc/hris/internal/ws"
	jwtutil "github.com/elevenetc/hris/pkg/jwt"
	"github.com/elevenetc/hris/pkg/logger"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	Hub       *ws.Hub
	JWTSecret string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewWSHandler(hub *ws.Hub, jwtSecret string) *WSHandler {
	return &WSHandler{Hub: hub, JWTSecret: jwtSecret}
}

// GET /ws?token=... — upgrades the connection and keeps it registered so
// the browser delivery channel can push notifications.
func (h *WSHandler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := jwtutil.ValidateToken(token, h.JWTSecret)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.Hub.Register(claims.UserID, conn)

	// Drain reads until the client disconnects; the hub only writes.
	go func() {
		defer func() {
			h.Hub.Unregister(claims.UserID, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
