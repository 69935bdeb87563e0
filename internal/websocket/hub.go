package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Entities broadcast to dashboards.
const (
	EntityEvents       = "events"
	EntityEvent        = "event"
	EntityNotification = "notification"
	EntitySettings     = "settings"
)

// Message is a real-time notification broadcast to all dashboards.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// EventsRefreshed announces a new merged snapshot.
func EventsRefreshed(extra map[string]any) Message {
	return NewMessage(EntityEvents, "refreshed", "", extra)
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
// The latest message of each retained type is replayed to clients as they
// connect so a fresh dashboard knows the current snapshot state.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	retain   map[string]bool
	retained map[string][]byte
	handler  func(Request)
	logger   *slog.Logger
}

// NewHub creates a Hub that retains events_refreshed and settings_updated.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		retain: map[string]bool{
			EntityEvents + "_refreshed": true,
			EntitySettings + "_updated": true,
		},
		retained: make(map[string][]byte),
		logger:   logger,
	}
}

// Register adds a client to the hub and queues the retained messages.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	for _, data := range h.retained {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	if h.retain[msg.Type] {
		h.mu.Lock()
		h.retained[msg.Type] = data
		h.mu.Unlock()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop message to avoid blocking
			h.logger.Debug("websocket client buffer full, dropping message", "type", msg.Type)
		}
	}
}

// OnRequest sets the function that receives dashboard requests. Requests
// arriving before it is set are dropped.
func (h *Hub) OnRequest(fn func(Request)) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

func (h *Hub) dispatch(req Request) {
	h.mu.RLock()
	fn := h.handler
	h.mu.RUnlock()
	if fn == nil {
		h.logger.Debug("dropping dashboard request", "type", req.Type)
		return
	}
	fn(req)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
