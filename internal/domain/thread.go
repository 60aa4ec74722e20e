package domain

import (
	"context"
	"strings"
	"time"
)

// Thread is a chat thread as listed by the backend. Only ID is used for
// identity; the rest is display data refreshed on every thread-list fetch.
type Thread struct {
	ID                    string     `json:"id"`
	Topic                 string     `json:"topic,omitempty"`
	LastMessageReceivedOn *time.Time `json:"last_message_received_on,omitempty"`
	DeletedOn             *time.Time `json:"deleted_on,omitempty"`
}

// HasID reports whether the thread carries the identifier needed to resolve it.
func (t Thread) HasID() bool {
	return strings.TrimSpace(t.ID) != ""
}

// CompareThreads orders threads by id. Threads without an id never compare
// equal to anything, themselves included.
func CompareThreads(a, b Thread) int {
	if !a.HasID() || !b.HasID() {
		return -1
	}
	return strings.Compare(a.ID, b.ID)
}

// Pager walks a paginated listing one page at a time.
type Pager[T any] interface {
	More() bool
	NextPage(ctx context.Context) ([]T, error)
}

// ThreadClient is the backend handle bound to one thread.
type ThreadClient interface {
	ThreadID() string
	ListMessages(ctx context.Context) Pager[Message]
	SendMessage(ctx context.Context, req SendMessageRequest) (string, error)
}

// CompareThreadClients orders handles by the thread they are bound to.
func CompareThreadClients(a, b ThreadClient) int {
	return strings.Compare(a.ThreadID(), b.ThreadID())
}

// ChatClient is an already-connected chat backend.
type ChatClient interface {
	ListThreads(ctx context.Context) Pager[Thread]
	// ThreadClient resolves the handle for threadID. It fails with
	// ErrInvalidThread when the id is empty or unknown to the backend.
	ThreadClient(ctx context.Context, threadID string) (ThreadClient, error)
}

// MessageReceivedEvent signals new message activity somewhere in the account.
// The sync layer only uses it as a trigger; the fields are for logging.
type MessageReceivedEvent struct {
	ThreadID  string    `json:"thread_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Received  time.Time `json:"received"`
}
