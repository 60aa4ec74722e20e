package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Client represents a WebSocket client connection
type Client struct {
	ID   string          // Unique client ID
	Conn *websocket.Conn // WebSocket connection
	Send chan []byte     // Outbound message channel

	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex                    // Protects subs
	subs map[string]context.CancelFunc // Channel name -> feed cancel

	writeMu sync.Mutex // Serializes conn writes
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]context.CancelFunc),
	}
}

// IsSubscribed checks if client is subscribed to a channel
func (c *Client) IsSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[channel]
	return ok
}

// GetChannels returns a copy of all subscribed channels
func (c *Client) GetChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	return channels
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// watch records the feed for channel, replacing and stopping any previous one.
func (c *Client) watch(channel string, cancel context.CancelFunc) {
	c.mu.Lock()
	prev := c.subs[channel]
	c.subs[channel] = cancel
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (c *Client) unwatch(channel string) bool {
	c.mu.Lock()
	cancel, ok := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// shutdown stops every feed and the write loop. Send is never closed, so
// feeds racing the shutdown cannot panic.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		for ch, cancel := range c.subs {
			cancel()
			delete(c.subs, ch)
		}
		c.mu.Unlock()
		close(c.done)
	})
}

// deliver blocks until payload is queued or the client or ctx goes away.
// Feeds rely on the blocking: a slow client makes its subscription skip to
// the latest snapshot instead of queueing stale ones.
func (c *Client) deliver(ctx context.Context, payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// SendJSON queues v without blocking. Used for replies to client requests.
func (c *Client) SendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.Send <- payload:
	case <-c.done:
	default:
		// Channel full, message dropped
	}
}

// WriteLoop handles outbound messages from the Send channel
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.Send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

// close closes the WebSocket connection
func (c *Client) close() {
	c.writeMu.Lock()
	_ = c.Conn.Close()
	c.writeMu.Unlock()
}
