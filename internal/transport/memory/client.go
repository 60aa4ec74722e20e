// Package memory is an in-process chat backend. It backs local mode when no
// ACS endpoint is configured and doubles as the transport in tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"azure-communication/internal/domain"
	acs_errors "azure-communication/pkg/errors"

	"github.com/google/uuid"
)

const DefaultPageSize = 20

type Client struct {
	mu         sync.RWMutex
	threads    []domain.Thread
	messages   map[string][]domain.Message
	sequences  map[string]int64
	listErrs   map[string]error
	threadsErr error
	pageSize   int
	now        func() time.Time
	handlers   []func(domain.MessageReceivedEvent)

	resolveCalls map[string]int
	listCalls    map[string]int
}

func NewClient(pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		messages:     make(map[string][]domain.Message),
		sequences:    make(map[string]int64),
		listErrs:     make(map[string]error),
		pageSize:     pageSize,
		now:          time.Now,
		resolveCalls: make(map[string]int),
		listCalls:    make(map[string]int),
	}
}

// CreateThread adds a thread with a generated id.
func (c *Client) CreateThread(topic string) domain.Thread {
	thread := domain.Thread{ID: uuid.New().String(), Topic: topic}
	c.AddThread(thread)
	return thread
}

// AddThread registers thread, replacing an existing thread with the same id.
func (c *Client) AddThread(thread domain.Thread) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.threads {
		if c.threads[i].ID == thread.ID {
			c.threads[i] = thread
			return
		}
	}
	c.threads = append(c.threads, thread)
}

// AddMessage stores msg as-is under threadID without firing notifications.
func (c *Client) AddMessage(threadID string, msg domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg.ThreadID = threadID
	if msg.SequenceID == 0 {
		c.sequences[threadID]++
		msg.SequenceID = c.sequences[threadID]
	}
	c.messages[threadID] = append(c.messages[threadID], msg)
}

// OnMessageReceived registers fn to run after every SendMessage.
func (c *Client) OnMessageReceived(fn func(domain.MessageReceivedEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// SetListError makes every page fetch of threadID's messages fail with err.
// A nil err clears it.
func (c *Client) SetListError(threadID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.listErrs, threadID)
		return
	}
	c.listErrs[threadID] = err
}

// SetThreadsError makes thread listing fail with err. A nil err clears it.
func (c *Client) SetThreadsError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threadsErr = err
}

// ResolveCalls returns how many times a handle was requested for threadID.
func (c *Client) ResolveCalls(threadID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveCalls[threadID]
}

// ListMessageCalls returns how many message listings were started for threadID.
func (c *Client) ListMessageCalls(threadID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listCalls[threadID]
}

func (c *Client) ListThreads(ctx context.Context) domain.Pager[domain.Thread] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := append([]domain.Thread(nil), c.threads...)
	return newPager(items, c.pageSize, c.threadsErr)
}

func (c *Client) ThreadClient(ctx context.Context, threadID string) (domain.ThreadClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolveCalls[threadID]++
	if threadID == "" {
		return nil, acs_errors.ErrInvalidThread
	}
	for _, thread := range c.threads {
		if thread.ID == threadID {
			return &threadClient{client: c, threadID: threadID}, nil
		}
	}
	return nil, fmt.Errorf("thread %s: %w", threadID, acs_errors.ErrInvalidThread)
}

func (c *Client) listMessages(threadID string) domain.Pager[domain.Message] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listCalls[threadID]++
	// newest first, the way the service pages history
	stored := c.messages[threadID]
	items := make([]domain.Message, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		items = append(items, stored[i])
	}
	return newPager(items, c.pageSize, c.listErrs[threadID])
}

func (c *Client) sendMessage(ctx context.Context, threadID string, req domain.SendMessageRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Content == "" {
		return "", fmt.Errorf("empty message content: %w", acs_errors.ErrInvalidInput)
	}
	msgType := req.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	c.mu.Lock()
	created := c.now().UTC()
	c.sequences[threadID]++
	msg := domain.Message{
		ID:                uuid.New().String(),
		ThreadID:          threadID,
		Type:              msgType,
		SequenceID:        c.sequences[threadID],
		Version:           "1",
		Content:           domain.MessageContent{Message: req.Content},
		SenderDisplayName: req.SenderDisplayName,
		CreatedOn:         &created,
	}
	c.messages[threadID] = append(c.messages[threadID], msg)
	for i := range c.threads {
		if c.threads[i].ID == threadID {
			c.threads[i].LastMessageReceivedOn = &created
		}
	}
	handlers := slices.Clone(c.handlers)
	c.mu.Unlock()

	event := domain.MessageReceivedEvent{
		ThreadID:  threadID,
		MessageID: msg.ID,
		Source:    "memory",
		Received:  created,
	}
	for _, h := range handlers {
		h(event)
	}
	return msg.ID, nil
}

type threadClient struct {
	client   *Client
	threadID string
}

func (t *threadClient) ThreadID() string {
	return t.threadID
}

func (t *threadClient) ListMessages(ctx context.Context) domain.Pager[domain.Message] {
	return t.client.listMessages(t.threadID)
}

func (t *threadClient) SendMessage(ctx context.Context, req domain.SendMessageRequest) (string, error) {
	return t.client.sendMessage(ctx, t.threadID, req)
}

type pager[T any] struct {
	items    []T
	pageSize int
	offset   int
	started  bool
	err      error
}

func newPager[T any](items []T, pageSize int, err error) *pager[T] {
	return &pager[T]{items: items, pageSize: pageSize, err: err}
}

func (p *pager[T]) More() bool {
	return !p.started || p.offset < len(p.items)
}

func (p *pager[T]) NextPage(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	p.started = true
	end := p.offset + p.pageSize
	if end > len(p.items) {
		end = len(p.items)
	}
	page := p.items[p.offset:end]
	p.offset = end
	return page, nil
}
