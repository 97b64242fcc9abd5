package hub

import (
	"encoding/json"
	"sync"

	"github.com/wisegate/wisegate/pkg/log"
)

// GroupKey returns the broadcast group key for a user. Every live connection
// of one user, across tabs and devices, shares this group.
func GroupKey(userID string) string {
	return "user:" + userID
}

// Hub tracks live authenticated connections grouped per user. Registration,
// removal and broadcast all take the same lock, so a connection is never
// written to after its removal has closed the send channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // clientID -> client
	groups  map[string]map[string]*Client // group key -> clientID -> client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
	}
}

// Register adds an authenticated client to its user group.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := GroupKey(client.UserID)
	h.clients[client.ID] = client
	if _, ok := h.groups[key]; !ok {
		h.groups[key] = make(map[string]*Client)
	}
	h.groups[key][client.ID] = client

	l := log.L()
	l.Debug().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldGroup, key).
		Msg("client registered")
}

// Unregister removes a client and closes its send channel. Safe to call more
// than once for the same client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	key := GroupKey(client.UserID)
	delete(h.clients, client.ID)
	if group, ok := h.groups[key]; ok {
		delete(group, client.ID)
		if len(group) == 0 {
			delete(h.groups, key)
		}
	}
	client.closeSend()

	l := log.L()
	l.Debug().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldGroup, key).
		Msg("client unregistered")
}

// BroadcastToUser delivers an event to every live connection of a user and
// returns how many connections received it. An empty group is a no-op: the
// synchronous HTTP answer stays authoritative, so a token that finds nobody
// listening is simply lost.
func (h *Hub) BroadcastToUser(userID string, event interface{}) int {
	data, err := json.Marshal(event)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Msg("hub: failed to marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, client := range h.groups[GroupKey(userID)] {
		select {
		case client.send <- data:
			delivered++
		default:
			// Send buffer full: the consumer stopped draining. Drop the
			// connection rather than block the relay.
			go h.Unregister(client)
		}
	}
	return delivered
}

// GroupSize reports the number of live connections for a user.
func (h *Hub) GroupSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[GroupKey(userID)])
}
