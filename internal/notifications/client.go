package notifications

import (
	"log"
	"sync"
	"time"

	"vibely/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	keepaliveEvery  = idleTimeout * 9 / 10 // must stay below idleTimeout
	maxInboundFrame = 16 << 10
	outboundBuffer  = 64
)

// WSHub is implemented by hubs that own Clients.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is one websocket connection of one user. Outbound frames go through
// Send; ReadPump and WritePump own the connection.
type Client struct {
	Hub    WSHub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uint

	// IncomingHandler receives every text frame the peer sends.
	IncomingHandler func(*Client, []byte)

	doneOnce sync.Once
	done     chan struct{}
}

// NewClient wraps conn for userID.
func NewClient(hub WSHub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, outboundBuffer),
	}
}

func (c *Client) doneCh() chan struct{} {
	c.doneOnce.Do(func() {
		if c.done == nil {
			c.done = make(chan struct{})
		}
	})
	return c.done
}

// ReadPump reads frames until the peer goes away or stops answering pings,
// then unregisters the client and releases WritePump.
func (c *Client) ReadPump() {
	done := c.doneCh()
	defer func() {
		close(done)
		if c.Hub != nil {
			c.Hub.UnregisterClient(c)
		}
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxInboundFrame)
	extend := func() error { return c.Conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend()
	c.Conn.SetPongHandler(func(string) error { return extend() })

	for {
		kind, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read (user %d): %v", c.UserID, err)
			}
			return
		}
		if kind != websocket.TextMessage || c.IncomingHandler == nil {
			continue
		}
		c.IncomingHandler(c, raw)
	}
}

// WritePump writes queued frames and keepalive pings until ReadPump exits or
// a write fails.
func (c *Client) WritePump() {
	done := c.doneCh()
	ping := time.NewTicker(keepaliveEvery)
	defer func() {
		ping.Stop()
		_ = c.Conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.Conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-done:
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.Send:
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a frame without blocking and reports whether it was queued.
// A full buffer drops the frame; snapshots are complete, so the next one
// repairs the gap.
func (c *Client) TrySend(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	default:
	}
	hub := "unknown"
	if c.Hub != nil {
		hub = c.Hub.Name()
	}
	observability.WebSocketBackpressureDrops.WithLabelValues(hub, "full").Inc()
	log.Printf("websocket %s: buffer full for user %d, frame dropped", hub, c.UserID)
	return false
}
