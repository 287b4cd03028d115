package websocket

import (
	"context"
	"sync"

	"studio/internal/api/models"
	"studio/internal/api/service"

	"github.com/rs/zerolog"
)

// Hub maintains the set of connected editor clients and fans server messages out to all
// of them. There is one session per server, so every client sees every message.
type Hub struct {
	clients map[string]*Client

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast messages to every client
	Broadcast chan Message

	done chan struct{}
	mu   sync.RWMutex

	Logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		Logger:     logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main event loop. It returns when ctx is cancelled, after closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Broadcast:
			h.broadcastMessage(message)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Publish queues message for every client. It never blocks: when the broadcast queue is
// full the message is dropped, so worker event delivery is never held up by slow clients.
func (h *Hub) Publish(message Message) bool {
	select {
	case h.Broadcast <- message:
		return true
	default:
		h.Logger.Warn().Str("type", string(message.Type)).Msg("Broadcast queue full, message dropped")
		return false
	}
}

// HandleEvent forwards a routed worker event to the editor.
func (h *Hub) HandleEvent(ev models.Event) {
	message, err := NewEventMessage(ev)
	if err != nil {
		h.Logger.Error().Err(err).Str("event", string(ev.Tag())).Msg("Failed to encode event for clients")
		return
	}
	h.Publish(message)
}

// HandleLogEntry forwards one activity log line to the editor.
func (h *Hub) HandleLogEntry(entry service.LogEntry) {
	h.Publish(NewLogMessage(entry))
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.Logger.Info().
		Str("clientId", client.ID).
		Int("totalClients", len(h.clients)).
		Msg("Client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.ID]; !exists {
		return
	}
	delete(h.clients, client.ID)
	client.close()

	h.Logger.Info().
		Str("clientId", client.ID).
		Int("remainingClients", len(h.clients)).
		Msg("Client disconnected")
}

func (h *Hub) broadcastMessage(message Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if !client.Deliver(message) {
			h.Logger.Warn().
				Str("clientId", client.ID).
				Str("type", string(message.Type)).
				Msg("Client send buffer full, message dropped")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.close()
		delete(h.clients, id)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClientIDs returns the ids of connected clients
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}
