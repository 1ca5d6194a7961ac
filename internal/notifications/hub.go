package notifications

import (
	"context"
	"errors"
	"sync"

	"slotswap/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	perUserStreams = 8
	totalStreams   = 10000
)

var (
	ErrUserConnLimit   = errors.New("user connection limit reached")
	ErrServerConnLimit = errors.New("server connection limit reached")
	ErrHubClosed       = errors.New("hub is shutting down")
)

// Hub tracks the live event streams of every connected student on this
// instance.
type Hub struct {
	mu      sync.Mutex
	streams map[uint][]*Client
	total   int
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{streams: make(map[uint][]*Client)}
}

// Register opens a stream for userID over ws. ws may be nil in tests, in
// which case the caller drains the queue itself instead of calling Serve.
func (h *Hub) Register(userID uint, ws *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return nil, ErrHubClosed
	case h.total >= totalStreams:
		return nil, ErrServerConnLimit
	case len(h.streams[userID]) >= perUserStreams:
		return nil, ErrUserConnLimit
	}

	c := &Client{userID: userID, ws: ws, hub: h, queue: make(chan []byte, queueSize)}
	h.streams[userID] = append(h.streams[userID], c)
	h.total++
	observability.WebSocketConnections.Inc()
	return c, nil
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.streams[c.userID]
	for i, other := range list {
		if other != c {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		h.total--
		observability.WebSocketConnections.Dec()
		break
	}
	if len(list) == 0 {
		delete(h.streams, c.userID)
	} else {
		h.streams[c.userID] = list
	}
}

// Deliver queues payload on every stream userID has open here.
func (h *Hub) Deliver(userID uint, payload string) {
	h.mu.Lock()
	targets := append([]*Client(nil), h.streams[userID]...)
	h.mu.Unlock()

	data := []byte(payload)
	for _, c := range targets {
		c.offer(data)
	}
}

// ConnectionCount returns the number of open streams for userID.
func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams[userID])
}

// Listen feeds every user event published through n into this hub until ctx
// is cancelled.
func (h *Hub) Listen(ctx context.Context, n *Notifier) error {
	return n.StartUserSubscriber(ctx, h.Deliver)
}

// Shutdown stops accepting streams and closes the open ones. Each stream's
// writer sends a going-away close frame as it drains.
func (h *Hub) Shutdown(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for _, list := range h.streams {
		for _, c := range list {
			c.stop()
		}
	}
	observability.WebSocketConnections.Sub(float64(h.total))
	h.streams = make(map[uint][]*Client)
	h.total = 0
	return nil
}
