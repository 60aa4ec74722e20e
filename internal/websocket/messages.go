package websocket

import "strings"

// Client -> server actions
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Server -> client events
const (
	EventThreads      = "threads"
	EventMessages     = "messages"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventError        = "error"
)

// ThreadsChannel carries the thread list; every client is subscribed on connect.
const ThreadsChannel = "threads"

// ClientMessage is a request sent by the browser.
type ClientMessage struct {
	Action   string `json:"action"`
	ThreadID string `json:"thread_id"`
}

// Push is every frame sent to the browser.
type Push struct {
	Event    string      `json:"event"`
	ThreadID string      `json:"thread_id,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ThreadChannel names the channel carrying one thread's messages.
func ThreadChannel(threadID string) string {
	return "thread:" + threadID
}

// ThreadIDFromChannel is the inverse of ThreadChannel.
func ThreadIDFromChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, "thread:")
	return id, ok && id != ""
}
