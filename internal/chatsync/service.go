// Package chatsync keeps per-thread message streams in step with the chat
// backend. Streams are created lazily the first time a thread is requested
// and republished whenever a change notification arrives.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"azure-communication/internal/domain"
	"azure-communication/internal/metrics"
	"azure-communication/pkg/collections"
	acs_errors "azure-communication/pkg/errors"
	"azure-communication/pkg/logger"
	"azure-communication/pkg/stream"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshConcurrency is used when Options.RefreshConcurrency is unset.
const DefaultRefreshConcurrency = 4

// SnapshotSink receives a copy of every published snapshot.
type SnapshotSink interface {
	StoreThreads(ctx context.Context, threads []domain.Thread) error
	StoreMessages(ctx context.Context, threadID string, msgs []domain.Message) error
}

// Options configures a Service. The zero value is usable.
type Options struct {
	// RefreshConcurrency caps how many thread histories are refetched at once
	// during a change notification.
	RefreshConcurrency int
	Sink               SnapshotSink
	Logger             *logger.Logger
}

// MessageStream replays the sorted history of one thread.
type MessageStream = stream.Observable[[]domain.Message]
// ThreadStream replays the latest thread list.
type ThreadStream = stream.Observable[[]domain.Thread]

// Service is the synchronization controller: it owns the thread list, the
// thread handle registry and one message stream per observed thread.
type Service struct {
	client domain.ChatClient

	threads        *stream.Subject[[]domain.Thread]
	threadClients  *collections.Dictionary[domain.Thread, domain.ThreadClient]
	messageStreams *collections.Dictionary[domain.ThreadClient, *stream.Subject[[]domain.Message]]

	// cycle is held shared while a stream is being built and exclusively for
	// a refresh, so a refresh never misses a stream whose history predates it.
	cycle    sync.RWMutex
	inflight singleflight.Group

	concurrency int
	sink        SnapshotSink
	logger      *logger.Logger
}

func NewService(client domain.ChatClient, opts Options) *Service {
	concurrency := opts.RefreshConcurrency
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	return &Service{
		client:         client,
		threads:        stream.NewSubject([]domain.Thread{}),
		threadClients:  collections.NewDictionary[domain.Thread, domain.ThreadClient](domain.CompareThreads),
		messageStreams: collections.NewDictionary[domain.ThreadClient, *stream.Subject[[]domain.Message]](domain.CompareThreadClients),
		concurrency:    concurrency,
		sink:           opts.Sink,
		logger:         logger.OrNop(opts.Logger).Named("chatsync"),
	}
}

// Threads returns the live thread list.
func (s *Service) Threads() ThreadStream {
	return s.threads
}

// ThreadsLoaded reports whether the thread list has been fetched at least once.
func (s *Service) ThreadsLoaded() bool {
	return s.threads.Version() > 0
}

// StreamCount returns the number of threads with a live message stream.
func (s *Service) StreamCount() int {
	return s.messageStreams.Len()
}

// GetMessageStream returns the live message stream for thread, creating it on
// first use. Repeated calls for the same thread return the same stream and do
// not hit the backend again.
func (s *Service) GetMessageStream(ctx context.Context, thread domain.Thread) (MessageStream, error) {
	if !thread.HasID() {
		return nil, acs_errors.ErrInvalidThread
	}

	if tc, ok := s.threadClients.Get(thread); ok {
		if subject, ok := s.messageStreams.Get(tc.Value); ok {
			return subject.Value, nil
		}
	}

	v, err := s.shared(ctx, "stream:"+thread.ID, func(ctx context.Context) (interface{}, error) {
		return s.buildStream(ctx, thread)
	})
	if err != nil {
		return nil, err
	}
	return v.(*stream.Subject[[]domain.Message]), nil
}

// SendMessage posts a message to thread. The new message reaches the stream
// through the next change notification.
func (s *Service) SendMessage(ctx context.Context, thread domain.Thread, req domain.SendMessageRequest) (string, error) {
	if !thread.HasID() {
		return "", acs_errors.ErrInvalidThread
	}
	tc, err := s.threadClient(ctx, thread)
	if err != nil {
		return "", err
	}
	id, err := tc.SendMessage(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message to thread %s: %w", thread.ID, err)
	}
	return id, nil
}

// HandleMessageReceived refreshes the whole thread list, then refetches and
// republishes the history of every thread that has a stream. Threads nobody
// has asked for are left alone. A failed refetch keeps that stream's last
// snapshot; all failures are joined into the returned error.
func (s *Service) HandleMessageReceived(ctx context.Context, event domain.MessageReceivedEvent) error {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	metrics.RefreshCycles.Inc()
	s.logger.Logger.Debug("change notification",
		zap.String("source", event.Source),
		zap.String("thread_id", event.ThreadID),
		zap.String("message_id", event.MessageID),
	)

	if err := s.refreshThreads(ctx); err != nil {
		metrics.RefreshFailures.WithLabelValues("threads").Inc()
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, tc := range s.threadClients.Values() {
		if tc == nil {
			continue
		}
		subject, err := s.messageStreams.GetValue(tc)
		if err != nil {
			continue
		}
		g.Go(func() error {
			msgs, err := s.fetchMessages(ctx, tc)
			if err != nil {
				metrics.RefreshFailures.WithLabelValues("messages").Inc()
				s.logger.Warnf("refresh thread %s: %v", tc.ThreadID(), err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("refresh thread %s: %w", tc.ThreadID(), err))
				mu.Unlock()
				return nil
			}
			subject.Next(msgs)
			s.mirrorMessages(ctx, tc.ThreadID(), msgs)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// RefreshThreads replaces the thread list with a fresh listing.
func (s *Service) RefreshThreads(ctx context.Context) error {
	s.cycle.Lock()
	defer s.cycle.Unlock()
	return s.refreshThreads(ctx)
}

// Close ends every subscription. Latest snapshots stay readable.
func (s *Service) Close() {
	s.threads.Close()
	for _, subject := range s.messageStreams.Values() {
		subject.Close()
	}
}

func (s *Service) buildStream(ctx context.Context, thread domain.Thread) (*stream.Subject[[]domain.Message], error) {
	s.cycle.RLock()
	defer s.cycle.RUnlock()

	tc, err := s.threadClient(ctx, thread)
	if err != nil {
		return nil, err
	}
	if subject, ok := s.messageStreams.Get(tc); ok {
		return subject.Value, nil
	}

	msgs, err := s.fetchMessages(ctx, tc)
	if err != nil {
		return nil, err
	}
	subject := stream.NewSubject(msgs)
	if err := s.messageStreams.Add(tc, subject); err != nil {
		return nil, err
	}
	metrics.StreamsCreated.Inc()
	s.logger.Infof("message stream created for thread %s with %d messages", thread.ID, len(msgs))
	s.mirrorMessages(ctx, thread.ID, msgs)
	return subject, nil
}

// threadClient returns the cached handle for thread, resolving and caching it
// on first use.
func (s *Service) threadClient(ctx context.Context, thread domain.Thread) (domain.ThreadClient, error) {
	if entry, ok := s.threadClients.Get(thread); ok {
		return entry.Value, nil
	}

	v, err := s.shared(ctx, "handle:"+thread.ID, func(ctx context.Context) (interface{}, error) {
		if entry, ok := s.threadClients.Get(thread); ok {
			return entry.Value, nil
		}
		tc, err := s.client.ThreadClient(ctx, thread.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve thread %s: %w", thread.ID, err)
		}
		if err := s.threadClients.Add(thread, tc); err != nil {
			return nil, err
		}
		metrics.HandlesResolved.Inc()
		return tc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.ThreadClient), nil
}

// shared runs fn once per key for all concurrent callers. fn gets a context
// that no caller can cancel; each caller stops waiting when its own ctx ends
// while the work runs on for the others.
func (s *Service) shared(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) refreshThreads(ctx context.Context) error {
	threads, err := collectPages(ctx, s.client.ListThreads(ctx))
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	// Whole list replaced on every notification; fine while accounts hold a
	// handful of threads.
	s.threads.Next(threads)
	s.logger.Debugf("thread list refreshed: %d threads", len(threads))

	if s.sink != nil {
		if err := s.sink.StoreThreads(ctx, threads); err != nil {
			s.logger.Warnf("mirror thread list: %v", err)
		}
	}
	return nil
}

func (s *Service) fetchMessages(ctx context.Context, tc domain.ThreadClient) ([]domain.Message, error) {
	msgs, err := collectPages(ctx, tc.ListMessages(ctx))
	if err != nil {
		return nil, fmt.Errorf("list messages of thread %s: %w", tc.ThreadID(), err)
	}
	metrics.HistoryFetches.Inc()
	domain.SortMessages(msgs)
	return msgs, nil
}

func (s *Service) mirrorMessages(ctx context.Context, threadID string, msgs []domain.Message) {
	if s.sink == nil {
		return
	}
	if err := s.sink.StoreMessages(ctx, threadID, msgs); err != nil {
		s.logger.Warnf("mirror messages of thread %s: %v", threadID, err)
	}
}

// collectPages drains pager one page at a time.
func collectPages[T any](ctx context.Context, pager domain.Pager[T]) ([]T, error) {
	items := make([]T, 0)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
	}
	return items, nil
}
