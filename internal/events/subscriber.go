package events

import "context"

// Subscriber delivers raw payloads published on channels.
type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}

// Publisher sends a raw payload on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
