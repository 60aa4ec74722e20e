package events

import (
	"context"
	"encoding/json"
	"time"

	"azure-communication/internal/domain"
	"azure-communication/internal/metrics"
	"azure-communication/pkg/logger"
)

// Bridge feeds notifications arriving on pub/sub channels into a Handler.
// Payloads are handled one at a time in arrival order, so refresh cycles
// never overlap.
type Bridge struct {
	subscriber Subscriber
	handler    Handler
	logger     *logger.Logger
}

func NewBridge(subscriber Subscriber, handler Handler, l *logger.Logger) *Bridge {
	return &Bridge{
		subscriber: subscriber,
		handler:    handler,
		logger:     logger.OrNop(l).Named("bridge"),
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (b *Bridge) Run(ctx context.Context, channels []string) error {
	return b.subscriber.Subscribe(ctx, channels, func(channel string, payload []byte) {
		event := decodeNotification(payload)
		metrics.NotificationsReceived.WithLabelValues(SourceRedis).Inc()
		if err := b.handler.HandleMessageReceived(ctx, event); err != nil {
			b.logger.Errorf("refresh after notification on %s failed: %v", channel, err)
		}
	})
}

// decodeNotification accepts a relayed domain event or an Event Grid
// envelope. Anything else still counts as a bare trigger.
func decodeNotification(payload []byte) domain.MessageReceivedEvent {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.EventType != "" {
		if event, ok := envelope.ChangeNotification(); ok {
			event.Source = SourceRedis
			return event
		}
	}

	var event domain.MessageReceivedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		event = domain.MessageReceivedEvent{}
	}
	event.Source = SourceRedis
	if event.Received.IsZero() {
		event.Received = time.Now().UTC()
	}
	return event
}
