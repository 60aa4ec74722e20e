// Package stream provides a hot, multicast publication channel that replays
// its latest value to every new subscriber.
package stream

import (
	"sync"
)

// Observable is the read side of a Subject.
type Observable[T any] interface {
	// Value returns the most recently published value.
	Value() T
	// Subscribe returns a subscription whose channel immediately holds the
	// current value, followed by every later value.
	Subscribe() *Subscription[T]
}

// Subject holds the latest value and fans every new value out to its
// subscribers. Each subscriber has a one-slot buffer: a slow reader skips
// intermediate values but always ends up with the latest one.
//
// Published values are shared between subscribers and must be treated as
// read-only.
type Subject[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	subs    map[*Subscription[T]]struct{}
	closed  bool
}

// NewSubject creates a subject seeded with initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[*Subscription[T]]struct{}),
	}
}

// Value returns the latest value.
func (s *Subject[T]) Value() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Version returns how many values have been published after the initial one.
func (s *Subject[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Next publishes v as the latest value. Publishing on a closed subject is a no-op.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.value = v
	s.version++
	for sub := range s.subs {
		sub.offer(v)
	}
}

// Subscribe registers a new subscriber. On a closed subject the returned
// subscription still carries the last value and its channel is then closed.
func (s *Subject[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription[T]{
		ch:      make(chan T, 1),
		subject: s,
	}
	sub.ch <- s.value
	if s.closed {
		close(sub.ch)
		sub.done = true
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// SubscriberCount returns the number of live subscriptions.
func (s *Subject[T]) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close ends every subscription. The latest value stays readable.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
		sub.done = true
	}
}

func (s *Subject[T]) remove(sub *Subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.done {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
	sub.done = true
}

// Subscription is one reader attached to a Subject.
type Subscription[T any] struct {
	ch      chan T
	subject *Subject[T]
	// done is guarded by subject.mu
	done bool
}

// C returns the channel delivering values. It is closed when the
// subscription or its subject is closed.
func (sub *Subscription[T]) C() <-chan T {
	return sub.ch
}

// Close detaches the subscription. Safe to call more than once.
func (sub *Subscription[T]) Close() error {
	sub.subject.remove(sub)
	return nil
}

// offer must be called with subject.mu held, which makes it the only writer.
func (sub *Subscription[T]) offer(v T) {
	select {
	case sub.ch <- v:
		return
	default:
	}
	// drop the stale value the reader has not picked up yet
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- v
}
