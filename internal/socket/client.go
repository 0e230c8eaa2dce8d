// File: internal/socket/client.go
// Quiz Engine - Socket Manager: per-connection client

package socket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	maxMessageSize = 1 << 16
)

// Client wraps one live websocket connection. Reads are dispatched to
// Dispatch; writes go through the buffered send channel so a slow
// client's backpressure never blocks the broadcaster.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dispatch is called with each raw inbound message. Set by the
// composition root before the read pump starts.
type Dispatch func(clientID string, message []byte)

// NewClient wraps conn with a buffered outbound queue.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		send:   make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

// Enqueue appends a message to this client's outbound queue. If the
// queue is full the message is dropped and logged; a slow client
// falling behind never blocks the broadcaster for everyone else.
func (c *Client) Enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
		log.Printf("Socket %s send buffer full, dropping message", c.ID)
	}
}

// Close stops the client's pumps by closing its outbound channel and
// underlying connection. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.send)
		c.conn.Close()
	})
}

// ReadPump reads inbound frames until the connection errors or closes,
// invoking dispatch for each message, then runs onClose.
func (c *Client) ReadPump(dispatch Dispatch, onClose func()) {
	defer func() {
		onClose()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Socket %s read error: %v", c.ID, err)
			}
			break
		}
		dispatch(c.ID, message)
	}
}

// WritePump drains the outbound queue to the connection, coalescing
// any messages queued behind the one it's about to flush, and keeps
// the connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
