package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the lifecycle stage of a connection
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Options tune the per-connection pumps
type Options struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Outbound frames buffered per client before it is dropped as too slow
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 10000
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Send pings to peer with this period
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Client is one authenticated websocket connection
type Client struct {
	id       string
	identity auth.Identity
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	rooms  map[string]struct{}
	state  State
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity, sendBuffer int) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]struct{}),
		state:    StateAuthenticated,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() auth.Identity { return c.identity }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Rooms returns the ids of the rooms the client has joined
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		out = append(out, roomID)
	}
	return out
}

// enqueue hands a frame to the write pump without blocking.
// It returns false when the client is closed or its buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// addRoom records membership on the client side; false if already joined or closed
func (c *Client) addRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if _, ok := c.rooms[roomID]; ok {
		return false
	}
	c.rooms[roomID] = struct{}{}
	c.state = StateJoined
	return true
}

// inRoom reports whether the client has joined roomID
func (c *Client) inRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// close marks the client disconnected and stops the write pump. Safe to call twice.
func (c *Client) close() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.state = StateDisconnected
	close(c.send)

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.rooms = make(map[string]struct{})
	return rooms
}

// readPump decodes inbound frames and hands each one to the engine before reading the next
func (c *Client) readPump(ctx context.Context, engine *Engine, opts Options, log *zap.Logger) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		engine.HandleFrame(ctx, c, message)
	}
}

// writePump pumps frames from the send channel to the websocket connection
func (c *Client) writePump(opts Options) {
	ticker := time.NewTicker(opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
