package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher relays change notifications to every instance subscribed to a
// channel. Satisfies events.Publisher.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}
