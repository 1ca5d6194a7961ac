package notifications

import (
	"log/slog"
	"sync"
	"time"

	"slotswap/internal/middleware"
	"slotswap/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	// Pings go out often enough that a healthy peer's pong always lands
	// before idleTimeout.
	pingInterval = idleTimeout * 9 / 10
	// Clients only ever send pongs and close frames.
	inboundLimit = 1024
	queueSize    = 64
)

var overflowNotice = []byte(`{"type":"events_dropped","payload":{"reason":"buffer_full"}}`)

// Client is one live event stream for a student.
type Client struct {
	userID uint
	ws     *websocket.Conn
	hub    *Hub
	queue  chan []byte
	once   sync.Once
}

// UserID is the student the stream belongs to.
func (c *Client) UserID() uint { return c.userID }

func (c *Client) stop() {
	c.once.Do(func() { close(c.queue) })
}

// offer queues payload without blocking. A full queue drops the event and,
// space permitting, tells the client to re-fetch.
func (c *Client) offer(payload []byte) {
	defer func() {
		// queue was closed by a concurrent disconnect
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.queue <- payload:
		return
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
	middleware.Logger.Warn("event queue full, dropping",
		slog.Uint64("user_id", uint64(c.userID)),
	)
	select {
	case c.queue <- overflowNotice:
	default:
	}
}

// Serve runs the stream until the peer disconnects or the hub shuts down.
// Inbound frames are read only to process pongs and detect closes.
func (c *Client) Serve() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()

	c.readLoop()
	c.hub.remove(c)
	c.stop()
	<-done
}

func (c *Client) readLoop() {
	c.ws.SetReadLimit(inboundLimit)
	extend := func(string) error { return c.ws.SetReadDeadline(time.Now().Add(idleTimeout)) }
	_ = extend("")
	c.ws.SetPongHandler(extend)

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Debug("event stream closed",
					slog.Uint64("user_id", uint64(c.userID)),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.ws.WriteMessage(kind, data)
	}

	for {
		select {
		case payload, open := <-c.queue:
			if !open {
				_ = write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := write(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
