package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/spyword/server/internal/event"
)

// WSConn wraps a WebSocket connection with its id and send buffer. The id
// is the transport-session-scoped connection identifier the core sees; it
// changes when a client reconnects.
type WSConn struct {
	conn   *websocket.Conn
	id     string
	room   string // room this connection has joined, if any
	send   chan []byte
	closed bool
}

// Hub manages WebSocket connections and room-group membership. Membership
// is keyed by connection id so the core can address connections through
// declared events without ever touching a socket.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*WSConn            // connID -> connection
	rooms map[string]map[string]*WSConn // room code -> connID -> connection
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*WSConn),
		rooms: make(map[string]map[string]*WSConn),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

// Unregister removes a connection from the hub and all room groups.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.id)
	for code, group := range h.rooms {
		delete(group, c.id)
		if len(group) == 0 {
			delete(h.rooms, code)
		}
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// AddToGroup adds a connection to a room's broadcast group.
func (h *Hub) AddToGroup(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*WSConn)
	}
	h.rooms[room][connID] = c
}

// RemoveFromGroup removes a connection from a room's broadcast group.
func (h *Hub) RemoveFromGroup(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.rooms[room]; ok {
		delete(group, connID)
		if len(group) == 0 {
			delete(h.rooms, room)
		}
	}
}

// PublishRoom sends an event to every connection in a room group.
func (h *Hub) PublishRoom(room string, env event.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[room] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("connId", c.id).Str("room", room).Msg("Dropping event, send buffer full")
		}
	}
}

// PublishConn sends an event to one connection.
func (h *Hub) PublishConn(connID string, env event.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("connId", connID).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.conns[connID]; ok {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("connId", connID).Msg("Dropping event, send buffer full")
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomMemberCount returns the number of connections in a room group.
func (h *Hub) RoomMemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
