package realtime

import (
	"log/slog"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/Windi-Fikriyansyah/tenant_chat/internal/identity"
)

const sendBufferSize = 256

// Transport is the write side of a duplex connection (*websocket.Conn satisfies it).
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnState tracks the trust level of a connection.
type ConnState int

const (
	// StateUnauthenticated: socket open, no verified identity yet.
	StateUnauthenticated ConnState = iota
	// StateIdentified: a token was verified at least once on this connection.
	StateIdentified
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Connection is one client socket. Outbound frames go through a buffered queue
// drained by a single writer goroutine.
type Connection struct {
	ID string

	transport Transport
	send      chan []byte

	mu     sync.Mutex
	state  ConnState
	token  string
	claims *identity.Claims
}

func NewConnection(id string, t Transport, handshakeToken string) *Connection {
	return &Connection{
		ID:        id,
		transport: t,
		send:      make(chan []byte, sendBufferSize),
		state:     StateUnauthenticated,
		token:     handshakeToken,
	}
}

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Claims() *identity.Claims {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims
}

// HandshakeToken is the token presented when the socket was opened, if any.
func (c *Connection) HandshakeToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// identify attaches claims on the first successful verification. It reports
// whether the connection moved from Unauthenticated to Identified.
func (c *Connection) identify(claims *identity.Claims, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnauthenticated {
		return false
	}
	c.state = StateIdentified
	c.claims = claims
	c.token = token
	return true
}

// enqueue queues a frame without blocking; frames for a full queue are dropped.
func (c *Connection) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	close(c.send)
}

func (c *Connection) writePump(logger *slog.Logger) {
	for msg := range c.send {
		if err := c.transport.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debug("websocket write failed", "conn_id", c.ID, "error", err)
			_ = c.transport.Close()
			return
		}
	}
}
