package websocket

import (
	"sync"

	"github.com/CUknot/marketplace_chat/metrics"
)

// Hub maintains the set of live clients and their room memberships.
// One Hub is created per server process; membership is never persisted.
type Hub struct {
	mu sync.RWMutex

	// Registered clients
	clients map[*Client]struct{}

	// Rooms mapping (roomID -> clients)
	rooms map[string]map[*Client]struct{}
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register admits an authenticated client
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		return
	}
	h.clients[client] = struct{}{}
	metrics.ConnectionsActive.Inc()
}

// Unregister removes the client from every room and closes it. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, registered := h.clients[client]
	delete(h.clients, client)

	for _, roomID := range client.close() {
		h.removeFromRoom(client, roomID)
	}
	if registered {
		metrics.ConnectionsActive.Dec()
	}
}

// CloseAll disconnects every registered client and closes its socket
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.Unregister(client)
		if client.conn != nil {
			client.conn.Close()
		}
	}
	return len(clients)
}

func (h *Hub) removeFromRoom(client *Client, roomID string) {
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, client)
	// Clean up empty rooms
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// Join adds the client to a room. Joining twice is a no-op; it returns
// false when nothing changed or the client is already disconnected.
func (h *Hub) Join(client *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !client.addRoom(roomID) {
		return false
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	return true
}

// Members snapshots the clients joined to roomID
func (h *Hub) Members(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[roomID]
	out := make([]*Client, 0, len(members))
	for client := range members {
		out = append(out, client)
	}
	return out
}

// MemberCount returns how many clients are joined to roomID
func (h *Hub) MemberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToRoom sends frame to every client joined to roomID at call time and
// returns how many accepted it. Clients whose buffer is full are disconnected;
// clients that closed mid-broadcast are skipped.
func (h *Hub) BroadcastToRoom(roomID string, frame []byte) int {
	if roomID == "" {
		return 0
	}

	delivered := 0
	var slow []*Client
	for _, client := range h.Members(roomID) {
		if client.enqueue(frame) {
			delivered++
			continue
		}
		metrics.DroppedFrames.Inc()
		if client.State() != StateDisconnected {
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		h.Unregister(client)
	}
	return delivered
}
