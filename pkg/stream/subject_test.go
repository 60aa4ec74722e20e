package stream

import (
	"sync"
	"testing"
	"time"
)

func receive[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestSubject_SubscribeReplaysLatest(t *testing.T) {
	s := NewSubject("seed")
	s.Next("first")

	sub := s.Subscribe()
	defer sub.Close()

	if got := receive(t, sub); got != "first" {
		t.Errorf("replayed value: got %q, want first", got)
	}
	if got := s.Value(); got != "first" {
		t.Errorf("Value: got %q, want first", got)
	}
}

func TestSubject_MulticastsNext(t *testing.T) {
	s := NewSubject(0)
	a := s.Subscribe()
	b := s.Subscribe()
	defer a.Close()
	defer b.Close()

	receive(t, a)
	receive(t, b)

	s.Next(7)
	if got := receive(t, a); got != 7 {
		t.Errorf("subscriber a: got %d, want 7", got)
	}
	if got := receive(t, b); got != 7 {
		t.Errorf("subscriber b: got %d, want 7", got)
	}
	if got := s.Version(); got != 1 {
		t.Errorf("Version: got %d, want 1", got)
	}
}

func TestSubject_SlowSubscriberGetsLatest(t *testing.T) {
	s := NewSubject(0)
	sub := s.Subscribe()
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		s.Next(i)
	}

	if got := receive(t, sub); got != 5 {
		t.Errorf("slow subscriber: got %d, want 5", got)
	}
	select {
	case v := <-sub.C():
		t.Errorf("unexpected extra value %d", v)
	default:
	}
}

func TestSubject_CloseSubscription(t *testing.T) {
	s := NewSubject(0)
	sub := s.Subscribe()
	receive(t, sub)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = sub.Close()

	if n := s.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount: got %d, want 0", n)
	}
	if _, ok := <-sub.C(); ok {
		t.Error("channel still open after Close")
	}
	s.Next(1)
}

func TestSubject_CloseSubject(t *testing.T) {
	s := NewSubject("a")
	sub := s.Subscribe()
	receive(t, sub)

	s.Close()
	s.Next("ignored")

	if _, ok := <-sub.C(); ok {
		t.Error("subscription channel open after subject Close")
	}
	if got := s.Value(); got != "a" {
		t.Errorf("Value after Close: got %q, want a", got)
	}

	late := s.Subscribe()
	if got := receive(t, late); got != "a" {
		t.Errorf("late subscriber: got %q, want a", got)
	}
	if _, ok := <-late.C(); ok {
		t.Error("late subscription channel should be closed")
	}
	_ = late.Close()
}

func TestSubject_ConcurrentPublishers(t *testing.T) {
	s := NewSubject(0)
	sub := s.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s.Next(v)
		}(i)
	}
	wg.Wait()

	if got := s.Version(); got != 16 {
		t.Errorf("Version: got %d, want 16", got)
	}
	if got := receive(t, sub); got != s.Value() {
		t.Errorf("subscriber latest: got %d, want %d", got, s.Value())
	}
}
