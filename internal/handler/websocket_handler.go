package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/middleware"
	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
	ws "github.com/kathanshah86/battle-mitra-hub-sub000/internal/websocket"
)

// WebSocketHandler upgrades authenticated requests into chat sessions
type WebSocketHandler struct {
	hub        *ws.Hub
	newSession ws.SessionFactory
	upgrader   websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *ws.Hub, newSession ws.SessionFactory, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		newSession: newSession,
		upgrader:   createUpgrader(allowedOrigins),
	}
}

func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection. The optional
// room_id query parameter selects the room opened first.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return
	}
	roomID := r.URL.Query().Get("room_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.FromContext(r.Context()).Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// the request context ends when this handler returns
	client := ws.NewClient(context.WithoutCancel(r.Context()), h.hub, conn, userID, roomID, h.newSession)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
