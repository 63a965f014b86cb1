package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Relay forwards room broadcasts to other gateway instances.
type Relay interface {
	Publish(ctx context.Context, rooms []string, payload []byte) error
}

// Hub tracks connections and their broadcast groups ("rooms").
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[string]map[string]*Connection // room -> connID -> conn
	joins map[string]map[string]struct{}    // connID -> rooms

	relay  Relay
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]*Connection),
		rooms:  make(map[string]map[string]*Connection),
		joins:  make(map[string]map[string]struct{}),
		logger: logger.With("component", "hub"),
	}
}

// SetRelay enables cross-instance fan-out. Call before serving traffic.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.joins[c.ID] = make(map[string]struct{})
	h.mu.Unlock()
	h.logger.Debug("connection registered", "conn_id", c.ID)
}

// Unregister drops the connection from every room and closes its send queue.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	for room := range h.joins[c.ID] {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.joins, c.ID)
	delete(h.conns, c.ID)
	h.mu.Unlock()

	c.close()
	h.logger.Debug("connection unregistered", "conn_id", c.ID)
}

func (h *Hub) Join(c *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Connection)
	}
	h.rooms[room][c.ID] = c
	h.joins[c.ID][room] = struct{}{}
}

func (h *Hub) InRoom(c *Connection, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c.ID]
	return ok
}

// RoomSize returns the number of local members of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Emit sends one event to the union of rooms. A connection in several of the
// rooms receives it once.
func (h *Hub) Emit(ctx context.Context, rooms []string, event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("marshal broadcast payload", "event", event, "error", err)
		return
	}
	h.deliver(rooms, payload)

	if h.relay != nil {
		if err := h.relay.Publish(ctx, rooms, payload); err != nil {
			h.logger.Warn("relay publish failed", "event", event, "error", err)
		}
	}
}

// Send delivers an event to a single connection.
func (h *Hub) Send(c *Connection, event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("marshal payload", "event", event, "error", err)
		return
	}
	if !c.enqueue(payload) {
		h.logger.Debug("dropped frame", "conn_id", c.ID, "event", event)
	}
}

// deliver writes an encoded frame to local members only.
func (h *Hub) deliver(rooms []string, payload []byte) int {
	h.mu.RLock()
	targets := make(map[string]*Connection)
	for _, room := range rooms {
		for id, c := range h.rooms[room] {
			targets[id] = c
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.enqueue(payload) {
			sent++
		} else {
			h.logger.Debug("dropped frame for slow connection", "conn_id", c.ID)
		}
	}
	return sent
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}
