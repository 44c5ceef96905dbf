package handler

import (
	"encoding/json"
	"net/http"
	"time"

	ws "relay-chat/internal/websocket"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Ready returns readiness with relay stats. The relay has no external
// dependencies, so readiness is the hub being able to report its state.
func Ready(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"status":    "ready",
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]interface{}{
				"hub": map[string]interface{}{
					"status":      "up",
					"connections": hub.ClientCount(),
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
