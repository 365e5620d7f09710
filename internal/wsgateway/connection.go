// Package wsgateway implements the WebSocket connection registry,
// channel subscription, envelope framing, heartbeat and recovery
// protocol. Each connection runs a read pump and a write pump over a
// buffered outbound channel; subscriptions are explicit per channel.
package wsgateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pokercore/internal/events"
)

// Connection is one live WebSocket session: a user ID, the socket, its
// outbound buffer, and the set of channels it has subscribed to.
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu                sync.Mutex
	channels          map[string]bool
	lastSeenVersions  map[string]uint64
	missedPongs       int
	lastPong          time.Time
	closed            bool
}

func newConnection(id, userID string, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:               id,
		UserID:           userID,
		Conn:             conn,
		Send:             make(chan []byte, 256),
		channels:         make(map[string]bool),
		lastSeenVersions: make(map[string]uint64),
		lastPong:         time.Now(),
	}
}

func (c *Connection) subscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

func (c *Connection) unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

func (c *Connection) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}

func (c *Connection) recordPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missedPongs = 0
	c.lastPong = time.Now()
}

func (c *Connection) notePingSentWithoutPong() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missedPongs++
	return c.missedPongs
}

// markClosed flips the connection dead before its Send channel closes,
// so late senders drop their frames instead of hitting a closed channel.
func (c *Connection) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// enqueue places a pre-marshaled frame on the outbound buffer without
// blocking. Returns false when the buffer is full or the connection is
// closed.
func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// send marshals and enqueues one envelope, never blocking the caller.
func (c *Connection) send(env events.Envelope) bool {
	data, err := marshalEnvelope(env)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

// ReadPump decodes inbound envelopes and hands each to handler until the
// socket closes.
func (c *Connection) ReadPump(onClose func(*Connection), handler func(*Connection, events.Envelope)) {
	defer func() {
		onClose(c)
		c.Conn.Close()
	}()

	for {
		var env events.Envelope
		if err := c.Conn.ReadJSON(&env); err != nil {
			return
		}
		handler(c, env)
	}
}

// WritePump drains Send onto the socket until it is closed.
func (c *Connection) WritePump() {
	defer c.Conn.Close()
	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
