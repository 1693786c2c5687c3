// Package ws fans ingestion events out to connected live-viewer sessions
// over websockets.
package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Hub owns the set of active sessions. All mutations of the set happen on
// the Run goroutine; other goroutines talk to it through channels, so the
// broker callback never touches the session set directly.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub creates a Hub. Run must be started before events are delivered;
// until then Broadcast buffers a bounded number of events and drops the
// rest.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.log.Info().Int("clients", len(h.clients)).Msg("viewer connected")

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow or gone; treat as a disconnect.
					h.log.Warn().Msg("viewer send buffer full, dropping session")
					h.remove(client)
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

// remove deregisters a client exactly once, whichever path got here first.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.log.Info().Int("clients", len(h.clients)).Msg("viewer disconnected")
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a session. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast serializes event once and hands it to the Run loop. It never
// blocks the caller: when the hub is saturated or not yet running the
// event is dropped with a warning.
func (h *Hub) Broadcast(event any) {
	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast event")
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn().Msg("broadcast queue full, event dropped")
	}
}
