// Package broadcast implements C3: a registry of live connections
// (agent / spectator / bettor) and the send-to-one / send-to-role /
// send-to-all primitives the rest of the orchestrator uses to talk to
// clients. Grounded on the teacher's internal/ws.Hub (playerID-keyed
// client map, per-client buffered send channel, writePump goroutine),
// generalized from a single "player" role to three roles.
package broadcast

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsgame/orchestrator/internal/protocol"
)

// Role identifies what kind of client a connection belongs to.
type Role string

const (
	RoleAgent     Role = "agent"
	RoleSpectator Role = "spectator"
	RoleBettor    Role = "bettor"
)

// Client wraps one live WebSocket connection.
type Client struct {
	Conn    *websocket.Conn
	Role    Role
	Address string // lowercase on-ledger address, set once authenticated ("" for spectators/bettors)
	Name    string

	send   chan []byte
	closed bool
	mu     sync.Mutex
}

func newClient(conn *websocket.Conn, role Role) *Client {
	return &Client{
		Conn: conn,
		Role: role,
		send: make(chan []byte, 64),
	}
}

// Writable reports whether the client's send channel is still open.
func (c *Client) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[BROADCAST] send buffer full for %s %s, dropping message", c.Role, c.Address)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the client's send channel onto the socket and
// keeps the connection alive with periodic pings, matching the
// teacher's Client.writePump.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[BROADCAST] write error for %s %s: %v", c.Role, c.Address, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub owns the connection -> session mapping. No other component may
// write to it (spec §3 Lifecycle/ownership).
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	byAddress   map[string]*Client // lowercase address -> connected agent client
}

// NewHub creates an empty registry.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		byAddress: make(map[string]*Client),
	}
}

// AddClient registers a new connection under the given role and starts
// its write pump. Returns the Client handle the caller's read loop
// should use for subsequent Authenticate/Remove calls.
func (h *Hub) AddClient(conn *websocket.Conn, role Role) *Client {
	c := newClient(conn, role)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writePump()
	return c
}

// AuthenticateAgent binds a connection to an on-ledger address once C4
// has verified ownership of it.
func (h *Hub) AuthenticateAgent(c *Client, address, name string) {
	addr := strings.ToLower(address)
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.byAddress[addr]; ok && existing != c {
		// Replace stale registration (reconnect): drop the old socket.
		delete(h.clients, existing)
		go existing.close()
	}
	c.Address = addr
	c.Name = name
	h.byAddress[addr] = c
}

// RemoveClient unregisters a connection.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if c.Address != "" && h.byAddress[c.Address] == c {
		delete(h.byAddress, c.Address)
	}
	c.close()
}

// LookupAgentName returns the display name a connected agent registered
// at auth time, if it is currently connected.
func (h *Hub) LookupAgentName(address string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byAddress[strings.ToLower(address)]
	if !ok {
		return "", false
	}
	return c.Name, true
}

// IsAgentConnected reports whether the given address currently has a
// live agent connection.
func (h *Hub) IsAgentConnected(address string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.byAddress[strings.ToLower(address)]
	return ok
}

// SendTo delivers an event to one connection. No-op if the connection
// is not writable.
func (h *Hub) SendTo(c *Client, eventType string, payload interface{}) {
	if c == nil || !c.Writable() {
		return
	}
	env, err := protocol.NewEnvelope(eventType, payload, time.Now())
	if err != nil {
		log.Printf("[BROADCAST] failed to encode %s: %v", eventType, err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[BROADCAST] failed to marshal envelope %s: %v", eventType, err)
		return
	}
	c.enqueue(data)
}

// SendToAgent looks up a connected agent by address and delivers the
// event; a no-op if the agent isn't connected.
func (h *Hub) SendToAgent(address, eventType string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.byAddress[strings.ToLower(address)]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.SendTo(c, eventType, payload)
}

// Broadcast delivers an event to every connection whose role is in
// roles (or every connection if roles is empty).
func (h *Hub) Broadcast(eventType string, payload interface{}, roles ...Role) {
	env, err := protocol.NewEnvelope(eventType, payload, time.Now())
	if err != nil {
		log.Printf("[BROADCAST] failed to encode %s: %v", eventType, err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[BROADCAST] failed to marshal envelope %s: %v", eventType, err)
		return
	}

	roleSet := make(map[Role]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if len(roleSet) == 0 || roleSet[c.Role] {
			snapshot = append(snapshot, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		c.enqueue(data)
	}
}

// BroadcastPublic delivers to everyone except agents (spectators and
// bettors) — used for the "publicly" variant of match events that must
// omit personalized fields.
func (h *Hub) BroadcastPublic(eventType string, payload interface{}) {
	h.Broadcast(eventType, payload, RoleSpectator, RoleBettor)
}

// Stats summarizes current connection counts for the aggregate read
// endpoint named in spec §6.
type Stats struct {
	Agents     int `json:"agents"`
	Spectators int `json:"spectators"`
	Bettors    int `json:"bettors"`
}

// GetStats snapshots connection counts by role.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var s Stats
	for c := range h.clients {
		switch c.Role {
		case RoleAgent:
			s.Agents++
		case RoleSpectator:
			s.Spectators++
		case RoleBettor:
			s.Bettors++
		}
	}
	return s
}
