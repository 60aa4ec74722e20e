package events

import (
	"context"
	"sync"
	"time"

	"azure-communication/internal/domain"
	"azure-communication/internal/metrics"
	"azure-communication/pkg/logger"
)

// Poller triggers a refresh on a fixed interval, for deployments where no
// Event Grid subscription delivers change notifications.
type Poller struct {
	handler  Handler
	interval time.Duration
	logger   *logger.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewPoller(handler Handler, interval time.Duration, l *logger.Logger) *Poller {
	return &Poller{
		handler:  handler,
		interval: interval,
		logger:   logger.OrNop(l).Named("poller"),
		stopChan: make(chan struct{}),
	}
}

// Start begins the poll loop
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop gracefully shuts down
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

func (p *Poller) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-p.stopChan:
			return
		case now := <-ticker.C:
			metrics.NotificationsReceived.WithLabelValues(SourcePoller).Inc()
			event := domain.MessageReceivedEvent{Source: SourcePoller, Received: now.UTC()}
			if err := p.handler.HandleMessageReceived(ctx, event); err != nil {
				p.logger.Warnf("scheduled refresh failed: %v", err)
			}
		}
	}
}
