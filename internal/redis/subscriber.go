package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Subscriber delivers channel messages to a handler one at a time. Satisfies
// events.Subscriber.
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe blocks until ctx is cancelled, which is not reported as an error.
// Cancelling ctx closes the subscription, so a pending read returns at once.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	sub := s.client.Subscribe(ctx, channels...)
	defer sub.Close()
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stop()

	// wait for the confirmation so nothing published after return is lost
	if _, err := sub.Receive(ctx); err != nil {
		return ignoreCancel(ctx, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ignoreCancel(ctx, redis.ErrClosed)
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
