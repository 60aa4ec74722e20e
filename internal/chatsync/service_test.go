package chatsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"azure-communication/internal/domain"
	"azure-communication/internal/transport/memory"
	acs_errors "azure-communication/pkg/errors"
)

func at(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

func messageIDs(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func assertIDs(t *testing.T, got []domain.Message, want ...string) {
	t.Helper()
	ids := messageIDs(got)
	if len(ids) != len(want) {
		t.Fatalf("messages: got %v, want %v", ids, want)
	}
	for i := range ids {
		if ids[i] != want[i] {
			t.Fatalf("messages: got %v, want %v", ids, want)
		}
	}
}

// newFixture returns a backend holding thread t1 with m2(10) and m1(5).
func newFixture(t *testing.T, pageSize int) (*memory.Client, *Service) {
	t.Helper()
	backend := memory.NewClient(pageSize)
	backend.AddThread(domain.Thread{ID: "t1", Topic: "general"})
	backend.AddMessage("t1", domain.Message{ID: "m2", CreatedOn: at(10)})
	backend.AddMessage("t1", domain.Message{ID: "m1", CreatedOn: at(5)})
	svc := NewService(backend, Options{})
	t.Cleanup(svc.Close)
	return backend, svc
}

type recordingSink struct {
	mu       sync.Mutex
	threads  [][]domain.Thread
	messages map[string][][]domain.Message
	err      error
}

func (r *recordingSink) StoreThreads(ctx context.Context, threads []domain.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = append(r.threads, threads)
	return r.err
}

func (r *recordingSink) StoreMessages(ctx context.Context, threadID string, msgs []domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = make(map[string][][]domain.Message)
	}
	r.messages[threadID] = append(r.messages[threadID], msgs)
	return r.err
}

func TestGetMessageStream_SortsHistory(t *testing.T) {
	_, svc := newFixture(t, 10)

	ms, err := svc.GetMessageStream(context.Background(), domain.Thread{ID: "t1"})
	if err != nil {
		t.Fatalf("GetMessageStream: %v", err)
	}
	assertIDs(t, ms.Value(), "m1", "m2")
}

func TestGetMessageStream_DrainsAllPages(t *testing.T) {
	backend, svc := newFixture(t, 1)
	backend.AddMessage("t1", domain.Message{ID: "m0", CreatedOn: at(1)})

	ms, err := svc.GetMessageStream(context.Background(), domain.Thread{ID: "t1"})
	if err != nil {
		t.Fatalf("GetMessageStream: %v", err)
	}
	assertIDs(t, ms.Value(), "m0", "m1", "m2")
}

func TestGetMessageStream_Idempotent(t *testing.T) {
	backend, svc := newFixture(t, 10)
	ctx := context.Background()

	first, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1", Topic: "renamed"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if first != second {
		t.Error("expected the same stream instance on repeated calls")
	}
	if n := backend.ListMessageCalls("t1"); n != 1 {
		t.Errorf("message fetches: got %d, want 1", n)
	}
	if n := backend.ResolveCalls("t1"); n != 1 {
		t.Errorf("handle resolutions: got %d, want 1", n)
	}
}

func TestGetMessageStream_ConcurrentCallersShareStream(t *testing.T) {
	backend, svc := newFixture(t, 10)

	const callers = 16
	results := make([]MessageStream, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ms, err := svc.GetMessageStream(context.Background(), domain.Thread{ID: "t1"})
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = ms
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different stream", i)
		}
	}
	if n := backend.ListMessageCalls("t1"); n != 1 {
		t.Errorf("message fetches: got %d, want 1", n)
	}
	if n := svc.StreamCount(); n != 1 {
		t.Errorf("StreamCount: got %d, want 1", n)
	}
}

func TestGetMessageStream_InvalidThread(t *testing.T) {
	backend, svc := newFixture(t, 10)

	_, err := svc.GetMessageStream(context.Background(), domain.Thread{Topic: "no id"})
	if !errors.Is(err, acs_errors.ErrInvalidThread) {
		t.Fatalf("got %v, want ErrInvalidThread", err)
	}
	if n := svc.StreamCount(); n != 0 {
		t.Errorf("StreamCount: got %d, want 0", n)
	}
	if n := svc.threadClients.Len(); n != 0 {
		t.Errorf("cached handles: got %d, want 0", n)
	}
	if n := backend.ResolveCalls(""); n != 0 {
		t.Errorf("backend was asked to resolve an empty id %d times", n)
	}
}

func TestGetMessageStream_UnknownThread(t *testing.T) {
	_, svc := newFixture(t, 10)

	_, err := svc.GetMessageStream(context.Background(), domain.Thread{ID: "missing"})
	if !errors.Is(err, acs_errors.ErrInvalidThread) {
		t.Fatalf("got %v, want ErrInvalidThread", err)
	}
	if n := svc.threadClients.Len(); n != 0 {
		t.Errorf("cached handles: got %d, want 0", n)
	}
}

func TestGetMessageStream_RetriesHistoryWithCachedHandle(t *testing.T) {
	backend, svc := newFixture(t, 10)
	ctx := context.Background()
	boom := errors.New("page fetch failed")

	backend.SetListError("t1", boom)
	if _, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"}); !errors.Is(err, boom) {
		t.Fatalf("first call: got %v, want %v", err, boom)
	}
	if n := svc.threadClients.Len(); n != 1 {
		t.Fatalf("cached handles after failed fetch: got %d, want 1", n)
	}
	if n := svc.StreamCount(); n != 0 {
		t.Fatalf("StreamCount after failed fetch: got %d, want 0", n)
	}

	backend.SetListError("t1", nil)
	ms, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	assertIDs(t, ms.Value(), "m1", "m2")
	if n := backend.ResolveCalls("t1"); n != 1 {
		t.Errorf("handle resolutions: got %d, want 1", n)
	}
}

func TestHandleMessageReceived_RepublishesOnSameStream(t *testing.T) {
	backend, svc := newFixture(t, 10)
	ctx := context.Background()

	ms, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"})
	if err != nil {
		t.Fatalf("GetMessageStream: %v", err)
	}
	sub := ms.Subscribe()
	defer sub.Close()
	<-sub.C()

	backend.AddMessage("t1", domain.Message{ID: "m3", CreatedOn: at(20)})
	if err := svc.HandleMessageReceived(ctx, domain.MessageReceivedEvent{ThreadID: "t1"}); err != nil {
		t.Fatalf("HandleMessageReceived: %v", err)
	}

	select {
	case snapshot := <-sub.C():
		assertIDs(t, snapshot, "m1", "m2", "m3")
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	again, _ := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"})
	if again != ms {
		t.Error("stream instance changed after notification")
	}
	if n := svc.StreamCount(); n != 1 {
		t.Errorf("StreamCount: got %d, want 1", n)
	}
}

func TestHandleMessageReceived_RefreshesThreadList(t *testing.T) {
	backend, svc := newFixture(t, 10)
	backend.AddThread(domain.Thread{ID: "t2"})

	if svc.ThreadsLoaded() {
		t.Fatal("ThreadsLoaded before any refresh")
	}
	if err := svc.HandleMessageReceived(context.Background(), domain.MessageReceivedEvent{}); err != nil {
		t.Fatalf("HandleMessageReceived: %v", err)
	}

	threads := svc.Threads().Value()
	if len(threads) != 2 || threads[0].ID != "t1" || threads[1].ID != "t2" {
		t.Errorf("threads: got %+v, want t1 and t2", threads)
	}
	if !svc.ThreadsLoaded() {
		t.Error("ThreadsLoaded after refresh: got false")
	}
	// nobody asked for either thread, so no history was fetched
	if n := backend.ListMessageCalls("t1") + backend.ListMessageCalls("t2"); n != 0 {
		t.Errorf("message fetches for unobserved threads: got %d, want 0", n)
	}
}

func TestHandleMessageReceived_OnlyObservedThreads(t *testing.T) {
	backend, svc := newFixture(t, 10)
	backend.AddThread(domain.Thread{ID: "t2"})
	ctx := context.Background()

	if _, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"}); err != nil {
		t.Fatalf("GetMessageStream: %v", err)
	}
	if err := svc.HandleMessageReceived(ctx, domain.MessageReceivedEvent{}); err != nil {
		t.Fatalf("HandleMessageReceived: %v", err)
	}

	if n := backend.ListMessageCalls("t1"); n != 2 {
		t.Errorf("t1 fetches: got %d, want 2", n)
	}
	if n := backend.ListMessageCalls("t2"); n != 0 {
		t.Errorf("t2 fetches: got %d, want 0", n)
	}
}

func TestHandleMessageReceived_FailedRefetchKeepsSnapshot(t *testing.T) {
	backend, svc := newFixture(t, 10)
	backend.AddThread(domain.Thread{ID: "t2"})
	backend.AddMessage("t2", domain.Message{ID: "x1", CreatedOn: at(1)})
	ctx := context.Background()

	t1, _ := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"})
	t2, _ := svc.GetMessageStream(ctx, domain.Thread{ID: "t2"})

	boom := errors.New("network down")
	backend.SetListError("t1", boom)
	backend.AddMessage("t1", domain.Message{ID: "m3", CreatedOn: at(20)})
	backend.AddMessage("t2", domain.Message{ID: "x2", CreatedOn: at(2)})

	err := svc.HandleMessageReceived(ctx, domain.MessageReceivedEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	assertIDs(t, t1.Value(), "m1", "m2")
	assertIDs(t, t2.Value(), "x1", "x2")
}

func TestHandleMessageReceived_ThreadListFailureStopsCycle(t *testing.T) {
	backend, svc := newFixture(t, 10)
	ctx := context.Background()

	if _, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"}); err != nil {
		t.Fatalf("GetMessageStream: %v", err)
	}
	boom := errors.New("unauthorized")
	backend.SetThreadsError(boom)

	if err := svc.HandleMessageReceived(ctx, domain.MessageReceivedEvent{}); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if n := backend.ListMessageCalls("t1"); n != 1 {
		t.Errorf("t1 fetches: got %d, want 1", n)
	}
}

func TestService_MirrorsSnapshots(t *testing.T) {
	backend := memory.NewClient(10)
	backend.AddThread(domain.Thread{ID: "t1"})
	backend.AddMessage("t1", domain.Message{ID: "m1", CreatedOn: at(5)})
	sink := &recordingSink{err: errors.New("mirror offline")}
	svc := NewService(backend, Options{Sink: sink})
	defer svc.Close()
	ctx := context.Background()

	if _, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"}); err != nil {
		t.Fatalf("GetMessageStream: %v", err)
	}
	// sink failures never fail the sync
	if err := svc.HandleMessageReceived(ctx, domain.MessageReceivedEvent{}); err != nil {
		t.Fatalf("HandleMessageReceived: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.threads) != 1 {
		t.Errorf("thread snapshots mirrored: got %d, want 1", len(sink.threads))
	}
	if len(sink.messages["t1"]) != 2 {
		t.Errorf("message snapshots mirrored: got %d, want 2", len(sink.messages["t1"]))
	}
}

func TestSendMessage_FlowsBackThroughNotification(t *testing.T) {
	backend, svc := newFixture(t, 10)
	ctx := context.Background()

	notified := make(chan error, 1)
	backend.OnMessageReceived(func(e domain.MessageReceivedEvent) {
		notified <- svc.HandleMessageReceived(ctx, e)
	})

	ms, err := svc.GetMessageStream(ctx, domain.Thread{ID: "t1"})
	if err != nil {
		t.Fatalf("GetMessageStream: %v", err)
	}
	id, err := svc.SendMessage(ctx, domain.Thread{ID: "t1"}, domain.SendMessageRequest{Content: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := <-notified; err != nil {
		t.Fatalf("notification: %v", err)
	}

	snapshot := ms.Value()
	last := snapshot[len(snapshot)-1]
	if last.ID != id || last.Content.Message != "hello" {
		t.Errorf("last message: got %+v, want id %s with content hello", last, id)
	}
}

func TestSendMessage_InvalidThread(t *testing.T) {
	_, svc := newFixture(t, 10)
	_, err := svc.SendMessage(context.Background(), domain.Thread{}, domain.SendMessageRequest{Content: "x"})
	if !errors.Is(err, acs_errors.ErrInvalidThread) {
		t.Fatalf("got %v, want ErrInvalidThread", err)
	}
}

// gatedClient serves thread t1 whose history fetch blocks until release is
// closed or the fetch's ctx ends.
type gatedClient struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once

	mu    sync.Mutex
	pages int
}

func newGatedClient() *gatedClient {
	return &gatedClient{release: make(chan struct{}), started: make(chan struct{})}
}

func (g *gatedClient) ListThreads(ctx context.Context) domain.Pager[domain.Thread] {
	return &gatedPager[domain.Thread]{fetch: func(ctx context.Context) ([]domain.Thread, error) {
		return []domain.Thread{{ID: "t1"}}, nil
	}}
}

func (g *gatedClient) ThreadClient(ctx context.Context, threadID string) (domain.ThreadClient, error) {
	if threadID != "t1" {
		return nil, acs_errors.ErrInvalidThread
	}
	return gatedThread{client: g}, nil
}

func (g *gatedClient) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pages
}

type gatedThread struct{ client *gatedClient }

func (t gatedThread) ThreadID() string { return "t1" }

func (t gatedThread) SendMessage(ctx context.Context, req domain.SendMessageRequest) (string, error) {
	return "", errors.New("not supported")
}

func (t gatedThread) ListMessages(ctx context.Context) domain.Pager[domain.Message] {
	g := t.client
	return &gatedPager[domain.Message]{fetch: func(ctx context.Context) ([]domain.Message, error) {
		g.mu.Lock()
		g.pages++
		g.mu.Unlock()
		g.once.Do(func() { close(g.started) })
		select {
		case <-g.release:
			return []domain.Message{{ID: "m1", CreatedOn: at(1)}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
}

type gatedPager[T any] struct {
	done  bool
	fetch func(ctx context.Context) ([]T, error)
}

func (p *gatedPager[T]) More() bool { return !p.done }

func (p *gatedPager[T]) NextPage(ctx context.Context) ([]T, error) {
	items, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	p.done = true
	return items, nil
}

func TestGetMessageStream_CallerCancelDoesNotFailOthers(t *testing.T) {
	backend := newGatedClient()
	svc := NewService(backend, Options{})
	t.Cleanup(svc.Close)
	t.Cleanup(func() {
		select {
		case <-backend.release:
		default:
			close(backend.release)
		}
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.GetMessageStream(ctxA, domain.Thread{ID: "t1"})
		errA <- err
	}()

	select {
	case <-backend.started:
	case <-time.After(2 * time.Second):
		t.Fatal("history fetch never started")
	}

	type result struct {
		ms  MessageStream
		err error
	}
	resB := make(chan result, 1)
	go func() {
		ms, err := svc.GetMessageStream(context.Background(), domain.Thread{ID: "t1"})
		resB <- result{ms, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("caller A: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("caller A did not give up on its own cancellation")
	}

	close(backend.release)
	select {
	case r := <-resB:
		if r.err != nil {
			t.Fatalf("caller B: %v", r.err)
		}
		assertIDs(t, r.ms.Value(), "m1")
	case <-time.After(2 * time.Second):
		t.Fatal("caller B never got its stream")
	}

	if n := backend.fetchCount(); n != 1 {
		t.Errorf("history fetches: got %d, want 1", n)
	}
	if n := svc.StreamCount(); n != 1 {
		t.Errorf("StreamCount: got %d, want 1", n)
	}
}
