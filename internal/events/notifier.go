package events

import (
	"context"
	"encoding/json"
	"fmt"

	"azure-communication/internal/domain"
	"azure-communication/internal/metrics"
	"azure-communication/pkg/logger"
)

// Handler consumes change notifications. Implemented by chatsync.Service.
type Handler interface {
	HandleMessageReceived(ctx context.Context, event domain.MessageReceivedEvent) error
}

// Notifier routes a change notification to whatever refreshes the caches.
type Notifier interface {
	Notify(ctx context.Context, event domain.MessageReceivedEvent) error
}

// DirectNotifier hands notifications straight to a local handler.
type DirectNotifier struct {
	handler Handler
}

func NewDirectNotifier(handler Handler) *DirectNotifier {
	return &DirectNotifier{handler: handler}
}

func (n *DirectNotifier) Notify(ctx context.Context, event domain.MessageReceivedEvent) error {
	metrics.NotificationsReceived.WithLabelValues(sourceLabel(event.Source)).Inc()
	return n.handler.HandleMessageReceived(ctx, event)
}

// PublishingNotifier relays notifications over a pub/sub channel so that every
// instance subscribed to it refreshes, this one included.
type PublishingNotifier struct {
	publisher Publisher
	channel   string
	logger    *logger.Logger
}

func NewPublishingNotifier(publisher Publisher, channel string, l *logger.Logger) *PublishingNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PublishingNotifier{
		publisher: publisher,
		channel:   channel,
		logger:    logger.OrNop(l).Named("notifier"),
	}
}

func (n *PublishingNotifier) Notify(ctx context.Context, event domain.MessageReceivedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.publisher.Publish(ctx, n.channel, data); err != nil {
		return fmt.Errorf("failed to publish notification on %s: %w", n.channel, err)
	}
	n.logger.Debugf("notification relayed on %s for thread %s", n.channel, event.ThreadID)
	return nil
}

func sourceLabel(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
