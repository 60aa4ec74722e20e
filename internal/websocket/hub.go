package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"azure-communication/internal/metrics"
	"azure-communication/pkg/stream"
)

// Feed forwards values to one client until ctx is cancelled.
type Feed func(ctx context.Context, client *Client)

// ObservableFeed pushes every value of obs to the client as event. The
// current value goes out first, so a new subscriber always starts from the
// latest snapshot.
func ObservableFeed[T any](obs stream.Observable[T], event, threadID string) Feed {
	return func(ctx context.Context, client *Client) {
		sub := obs.Subscribe()
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-sub.C():
				if !ok {
					return
				}
				payload, err := json.Marshal(Push{Event: event, ThreadID: threadID, Data: v})
				if err != nil {
					continue
				}
				if !client.deliver(ctx, payload) {
					return
				}
			}
		}
	}
}

// subscriptionRequest represents a channel subscription/unsubscription request
type subscriptionRequest struct {
	client  *Client
	channel string
	feed    Feed // nil = unsubscribe
}

// Hub manages WebSocket client connections and channel subscriptions
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client (for cleanup)
	clients map[string]*Client

	// channels maps channel name to set of clients subscribed to it
	channels map[string]map[*Client]struct{}

	// Control channels
	register     chan *Client             // New client connections
	unregister   chan *Client             // Client disconnections
	subscription chan subscriptionRequest // Subscribe/unsubscribe requests
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		channels:     make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 256),
		unregister:   make(chan *Client, 256),
		subscription: make(chan subscriptionRequest, 512),
	}
}

// Run starts the hub's event loop. Remaining clients are shut down on exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.removeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.subscription:
			if req.feed != nil {
				h.subscribeToChannel(req.client, req.channel, req.feed)
			} else {
				h.unsubscribeFromChannel(req.client, req.channel)
			}
		}
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe attaches feed to client under channel. An existing feed for the
// same channel is replaced.
func (h *Hub) Subscribe(client *Client, channel string, feed Feed) {
	h.subscription <- subscriptionRequest{
		client:  client,
		channel: channel,
		feed:    feed,
	}
}

// Unsubscribe unsubscribes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.subscription <- subscriptionRequest{
		client:  client,
		channel: channel,
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelSubscriberCount returns the number of subscribers for a channel
func (h *Hub) GetChannelSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// addClient adds a new client to the hub (internal)
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	metrics.WebSocketClients.Inc()
}

// removeClient removes a client and all its subscriptions (internal)
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	// Remove client from all channels
	for _, channel := range client.GetChannels() {
		if subscribers, ok := h.channels[channel]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.channels, channel)
			}
		}
	}

	delete(h.clients, client.ID)
	client.shutdown()
	metrics.WebSocketClients.Dec()
}

// subscribeToChannel subscribes a client to a channel (internal)
func (h *Hub) subscribeToChannel(client *Client, channel string, feed Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// the client may have left while the request was queued
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	// Create channel set if not exists
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]struct{})
	}
	h.channels[channel][client] = struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	client.watch(channel, cancel)
	go feed(ctx, client)
}

// unsubscribeFromChannel unsubscribes a client from a channel (internal)
func (h *Hub) unsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, ok := h.channels[channel]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}

	client.unwatch(channel)
}
