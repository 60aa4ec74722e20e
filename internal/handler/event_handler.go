package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"azure-communication/internal/domain"
	"azure-communication/internal/events"
	"azure-communication/internal/transport/httpdto"
	"azure-communication/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxEventBatchBytes = 1 << 20

// EventHandler is the Event Grid webhook.
type EventHandler struct {
	notifier events.Notifier
	logger   *logger.Logger
}

func NewEventHandler(notifier events.Notifier, l *logger.Logger) *EventHandler {
	return &EventHandler{notifier: notifier, logger: logger.OrNop(l).Named("eventgrid")}
}

// Receive answers the subscription validation handshake and turns chat
// events into one change notification per batch. Every notification
// refreshes everything, so one per batch is enough. A failed refresh
// answers 500 and Event Grid retries the delivery.
func (h *EventHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBatchBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	var batch []events.Envelope
	if err := json.Unmarshal(body, &batch); err != nil {
		// single events are accepted too
		var single events.Envelope
		if err := json.Unmarshal(body, &single); err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid event payload", "INVALID_REQUEST"))
			return
		}
		batch = []events.Envelope{single}
	}

	log := h.logger.WithContext(c.Request.Context())
	for _, e := range batch {
		if code, ok := e.ValidationCode(); ok {
			log.Infof("event grid subscription validated for %s", e.Topic)
			c.JSON(http.StatusOK, events.SubscriptionValidationResponse{ValidationResponse: code})
			return
		}
	}

	var (
		event    domain.MessageReceivedEvent
		relevant int
	)
	for _, e := range batch {
		n, ok := e.ChangeNotification()
		if !ok {
			continue
		}
		if relevant == 0 {
			event = n
		}
		relevant++
	}
	if relevant == 0 {
		c.Status(http.StatusOK)
		return
	}

	log.Debugf("%d chat events in batch of %d, refreshing", relevant, len(batch))
	if err := h.notifier.Notify(c.Request.Context(), event); err != nil {
		log.Errorf("refresh after event grid delivery: %v", err)
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("refresh failed", "REFRESH_FAILED"))
		return
	}
	c.Status(http.StatusOK)
}
