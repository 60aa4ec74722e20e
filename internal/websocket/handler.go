package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"azure-communication/internal/chatsync"
	"azure-communication/internal/domain"
	"azure-communication/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxMessageSize = 4096

// StreamSource is the part of chatsync.Service the socket needs.
type StreamSource interface {
	Threads() chatsync.ThreadStream
	ThreadsLoaded() bool
	GetMessageStream(ctx context.Context, thread domain.Thread) (chatsync.MessageStream, error)
}

type Handler struct {
	source     StreamSource
	hub        *Hub
	authorizer *ThreadAuthorizer
	upgrader   websocket.Upgrader
	logger     *logger.Logger
}

// NewHandler serves sockets for browsers on allowedOrigins. An empty list, or
// one holding "*", accepts any origin, the same as the CORS middleware.
func NewHandler(source StreamSource, hub *Hub, allowedOrigins []string, l *logger.Logger) *Handler {
	return &Handler{
		source:     source,
		hub:        hub,
		authorizer: NewThreadAuthorizer(source.Threads(), source.ThreadsLoaded),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		logger: logger.OrNop(l).Named("websocket"),
	}
}

// originChecker accepts requests without an Origin header, which come from
// non-browser clients.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Connect upgrades the request and serves the connection until it closes.
// Every client gets the thread list; message streams are opt-in per thread.
func (h *Handler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("upgrade failed: %v", err)
		return
	}

	client := NewClient(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)
	h.hub.Subscribe(client, ThreadsChannel, ObservableFeed(h.source.Threads(), EventThreads, ""))
	h.logger.Debugf("client %s connected", client.ID)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.SendJSON(Push{Event: EventError, Error: "malformed message"})
			continue
		}
		h.handleMessage(ctx, client, msg)
	}

	h.hub.Unregister(client)
	h.logger.Debugf("client %s disconnected", client.ID)
}

func (h *Handler) handleMessage(ctx context.Context, client *Client, msg ClientMessage) {
	switch msg.Action {
	case ActionSubscribe:
		thread, err := h.authorizer.Resolve(msg.ThreadID)
		if err != nil {
			client.SendJSON(Push{Event: EventError, ThreadID: msg.ThreadID, Error: err.Error()})
			return
		}
		ms, err := h.source.GetMessageStream(ctx, thread)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.logger.Warnf("stream for thread %s: %v", thread.ID, err)
			}
			client.SendJSON(Push{Event: EventError, ThreadID: thread.ID, Error: err.Error()})
			return
		}
		client.SendJSON(Push{Event: EventSubscribed, ThreadID: thread.ID})
		h.hub.Subscribe(client, ThreadChannel(thread.ID), ObservableFeed(ms, EventMessages, thread.ID))
	case ActionUnsubscribe:
		h.hub.Unsubscribe(client, ThreadChannel(msg.ThreadID))
		client.SendJSON(Push{Event: EventUnsubscribed, ThreadID: msg.ThreadID})
	default:
		client.SendJSON(Push{Event: EventError, Error: "unknown action " + msg.Action})
	}
}
