package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10

	sendBufferSize = 16
)

// clientEvent is the inbound frame shape. Visitors only ever send
// lightweight keep-alive events.
type clientEvent struct {
	Event string `json:"event"`
}

// Client wraps one websocket session. Writes go through a buffered channel
// drained by a single writer goroutine; a client that cannot keep up is
// dropped rather than blocking the gateway.
type Client struct {
	id   string
	ws   *websocket.Conn
	send chan Message
	gw   *Gateway

	mu     sync.Mutex
	closed bool
}

// NewConnectionID returns a random hex session identifier.
func NewConnectionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:32]
	}
	return hex.EncodeToString(buf)
}

func NewClient(id string, ws *websocket.Conn, gw *Gateway) *Client {
	return &Client{
		id:   id,
		ws:   ws,
		send: make(chan Message, sendBufferSize),
		gw:   gw,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues a message for delivery. Reports false when the buffer is full,
// in which case the connection is closed so the read pump can clean up.
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		log.Warn("Client send buffer full, dropping connection", "socket", c.id)
		_ = c.ws.Close()
		return false
	}
}

// shutdown marks the client dead and releases the write pump. Safe to call
// once, after the connection is out of the registry.
func (c *Client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// ReadPump consumes inbound frames until the connection dies, then runs the
// disconnect transition. It must be the goroutine that owns reads.
func (c *Client) ReadPump() {
	defer func() {
		c.gw.HandleDisconnect(c.id)
		c.shutdown()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Websocket closed unexpectedly", "socket", c.id, "error", err)
			}
			return
		}

		var event clientEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}
		if event.Event == "ping" {
			c.Send(Text("pong"))
		}
	}
}

// WritePump drains the send channel and keeps the connection alive with
// pings. It must be the goroutine that owns writes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
