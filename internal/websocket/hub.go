// Package websocket is the connection gateway: it accepts WebSocket
// connections and delivers inbound commands to the broadcast engine and
// outbound event frames to clients. The hub is room-agnostic; the engine
// names the recipients of every frame.
package websocket

import (
	"context"
	"log/slog"
	"sync/atomic"

	"relay-chat/internal/observability"
)

// frame is one outbound delivery: a pre-encoded event and its recipients.
type frame struct {
	targets []string // connection ids; ignored when all is set
	all     bool
	data    []byte
}

// Hub maintains the set of live clients keyed by connection id and fans
// frames out to them from a single goroutine.
type Hub struct {
	clients map[string]*Client

	frames     chan *frame
	register   chan *Client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}

	count atomic.Int64
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		frames:     make(chan *frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client.id] = client
			h.count.Add(1)
			observability.WebSocketConnectionsActive.Inc()
			slog.Info("client registered",
				slog.String("connection_id", client.id))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case f := <-h.frames:
			if f.all {
				for _, client := range h.clients {
					h.deliver(client, f.data)
				}
				continue
			}
			for _, id := range f.targets {
				if client, ok := h.clients[id]; ok {
					h.deliver(client, f.data)
				}
			}
		}
	}
}

// deliver enqueues a frame on the client's send buffer. A client whose
// buffer is full is dropped so one slow recipient never stalls the loop.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.closeClientSend(client)
		delete(h.clients, client.id)
		h.count.Add(-1)
		observability.WebSocketConnectionsActive.Dec()
		observability.EventsDropped.Inc()
		slog.Warn("client dropped, send buffer full",
			slog.String("connection_id", client.id))
	}
}

// unregisterClient safely removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		h.closeClientSend(client)
		h.count.Add(-1)
		observability.WebSocketConnectionsActive.Dec()
		slog.Info("client unregistered",
			slog.String("connection_id", client.id))
	}
}

// closeClientSend closes a client's send channel exactly once. Draining
// is left to the write pump, which sees the close even with frames still
// buffered; a full buffer must not keep the channel open.
func (h *Hub) closeClientSend(client *Client) {
	if client.sendClosed.CompareAndSwap(false, true) {
		close(client.send)
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for id, client := range h.clients {
		h.closeClientSend(client)
		slog.Info("closed client connection",
			slog.String("connection_id", id))
	}

	slog.Info("hub shutdown complete")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Send delivers a frame to one connection.
func (h *Hub) Send(connID string, data []byte) {
	h.frames <- &frame{targets: []string{connID}, data: data}
}

// SendMany delivers a frame to each listed connection.
func (h *Hub) SendMany(connIDs []string, data []byte) {
	h.frames <- &frame{targets: connIDs, data: data}
}

// Broadcast delivers a frame to every connected client.
func (h *Hub) Broadcast(data []byte) {
	h.frames <- &frame{all: true, data: data}
}

// Register registers a client with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
