package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is the process-local routing table from room names to connections.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{rooms: make(map[string]map[*Client]struct{}), logger: logger}
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
		delete(c.rooms, room)
	}
}

// Deliver writes a pre-encoded frame to every local member of room and
// returns how many connections accepted it.
func (h *Hub) Deliver(room string, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		h.logger.Warn("dropping slow connection", "user_id", c.userID, "room", room)
		c.close()
	}
	return delivered
}

// EmitToUser pushes an event to every local connection of a user.
func (h *Hub) EmitToUser(ctx context.Context, userID, event string, payload any) error {
	return h.EmitToRoom(ctx, UserRoom(userID), event, payload)
}

func (h *Hub) EmitToRoom(ctx context.Context, room, event string, payload any) error {
	frame, err := encodeFrame(event, nil, payload)
	if err != nil {
		return err
	}
	h.Deliver(room, frame)
	return nil
}

// Members counts local connections in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// CloseAll disconnects every local connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	seen := make(map[*Client]struct{})
	for _, members := range h.rooms {
		for c := range members {
			seen[c] = struct{}{}
		}
	}
	h.mu.RUnlock()
	for c := range seen {
		c.close()
	}
}
