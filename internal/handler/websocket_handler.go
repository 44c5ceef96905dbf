package handler

import (
	"context"
	"log/slog"
	"net/http"

	"relay-chat/internal/engine"
	"relay-chat/internal/middleware"
	ws "relay-chat/internal/websocket"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades HTTP requests into relay connections.
type WebSocketHandler struct {
	hub      *ws.Hub
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins is
// the comma-separated origin allowlist; "*" accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, eng *engine.Engine, allowedOrigins string) *WebSocketHandler {
	origins := middleware.ParseOrigins(allowedOrigins)

	return &WebSocketHandler{
		hub:    hub,
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin header.
					return true
				}
				for _, o := range origins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}

	connID := uuid.New().String()
	// The request context dies with the handler; the connection outlives it.
	client := ws.NewClient(context.Background(), h.hub, conn, connID, h.engine)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
