package realtime

import (
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"
)

const (
	sendBuffer   = 256
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 64 * 1024
)

// Client wraps a single websocket connection. Reads are driven by the
// server's dispatch loop; Client owns the outbound side only.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	closed  int32
}

// NewClient constructs a client with a token bucket bounding inbound
// events. conn may be nil in tests; WritePump must not be started then.
func NewClient(conn *websocket.Conn, limit rate.Limit, burst int) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Allow reports whether another inbound event fits the per-user budget.
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

// Send queues a frame without blocking. The send channel is never
// closed; shutdown is signalled through done, so a Send racing Close
// cannot panic. A full buffer means a consumer that stopped draining;
// the frame is dropped and false returned so the caller can decide to
// evict.
func (c *Client) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close is idempotent and safe from any goroutine.
func (c *Client) Close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// WritePump drains the send buffer onto the wire and keeps the
// connection alive with pings. Runs until Close or a write error.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// ReadLimit configures the inbound frame cap on the underlying conn.
func (c *Client) ReadLimit(limit int64) {
	if limit <= 0 {
		limit = maxFrameSize
	}
	if c.conn != nil {
		c.conn.SetReadLimit(limit)
	}
}
