package websocket

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/observability"
)

// Hub tracks the connected chat sessions and closes them on shutdown.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	// Shutdown signal
	done   chan struct{}
	active atomic.Int64
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
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
			h.clients[client] = struct{}{}
			h.active.Add(1)
			observability.ChatSessionsActive.Inc()
			slog.Debug("client registered", slog.String("user_id", client.userID))

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.active.Add(-1)
	observability.ChatSessionsActive.Dec()
	slog.Debug("client unregistered", slog.String("user_id", client.userID))
}

// shutdown closes every remaining session
func (h *Hub) shutdown() {
	close(h.done)

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
		h.active.Add(-1)
		observability.ChatSessionsActive.Dec()
	}

	slog.Info("hub shutdown complete")
}

// Register adds a client. A client registering after shutdown is closed.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Active returns the number of registered clients
func (h *Hub) Active() int {
	return int(h.active.Load())
}
