package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"azure-communication/internal/chatsync"
	"azure-communication/internal/domain"
	"azure-communication/internal/events"
	"azure-communication/internal/storage"
	"azure-communication/internal/transport/httpdto"
	acs_errors "azure-communication/pkg/errors"
	"azure-communication/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ChatService is the part of chatsync.Service the REST surface needs.
type ChatService interface {
	Threads() chatsync.ThreadStream
	ThreadsLoaded() bool
	RefreshThreads(ctx context.Context) error
	GetMessageStream(ctx context.Context, thread domain.Thread) (chatsync.MessageStream, error)
	SendMessage(ctx context.Context, thread domain.Thread, req domain.SendMessageRequest) (string, error)
}

// Exporter writes a thread transcript somewhere durable.
type Exporter interface {
	ExportTranscript(ctx context.Context, thread domain.Thread, msgs []domain.Message) (storage.Export, error)
}

type ThreadHandlerOptions struct {
	// NotifyOnSend triggers a change notification after every send. Leave it
	// off when the transport reports its own sends.
	NotifyOnSend bool
	Exporter     Exporter
	Logger       *logger.Logger
}

type ThreadHandler struct {
	service      ChatService
	notifier     events.Notifier
	exporter     Exporter
	notifyOnSend bool
	logger       *logger.Logger
}

func NewThreadHandler(service ChatService, notifier events.Notifier, opts ThreadHandlerOptions) *ThreadHandler {
	return &ThreadHandler{
		service:      service,
		notifier:     notifier,
		exporter:     opts.Exporter,
		notifyOnSend: opts.NotifyOnSend,
		logger:       logger.OrNop(opts.Logger).Named("http"),
	}
}

func (h *ThreadHandler) List(c *gin.Context) {
	if !h.service.ThreadsLoaded() {
		if err := h.service.RefreshThreads(c.Request.Context()); err != nil {
			_ = c.Error(err)
			return
		}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(threadList(h.service.Threads().Value())))
}

// Refresh runs a full change-notification cycle, as if ACS had reported
// new activity.
func (h *ThreadHandler) Refresh(c *gin.Context) {
	event := domain.MessageReceivedEvent{Source: events.SourceAPI, Received: nowUTC()}
	if err := h.notifier.Notify(c.Request.Context(), event); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(threadList(h.service.Threads().Value())))
}

func (h *ThreadHandler) Messages(c *gin.Context) {
	thread, err := h.thread(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ms, err := h.service.GetMessageStream(c.Request.Context(), thread)
	if err != nil {
		_ = c.Error(err)
		return
	}
	msgs := ms.Value()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MessagesResponse{
		ThreadID: thread.ID,
		Messages: msgs,
		Count:    len(msgs),
	}))
}

func (h *ThreadHandler) Send(c *gin.Context) {
	thread, err := h.thread(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	ctx := c.Request.Context()
	id, err := h.service.SendMessage(ctx, thread, domain.SendMessageRequest{
		Content:           req.Content,
		SenderDisplayName: req.SenderDisplayName,
		Type:              domain.MessageType(req.Type),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	if h.notifyOnSend {
		event := domain.MessageReceivedEvent{ThreadID: thread.ID, MessageID: id, Source: events.SourceAPI, Received: nowUTC()}
		if err := h.notifier.Notify(ctx, event); err != nil {
			// the message is sent; the next notification will pick it up
			h.logger.WithContext(ctx).Warnf("notify after send to %s: %v", thread.ID, err)
		}
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{ID: id, ThreadID: thread.ID}))
}

func (h *ThreadHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		_ = c.Error(fmt.Errorf("transcript export: %w", acs_errors.ErrNotConfigured))
		return
	}
	thread, err := h.thread(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ms, err := h.service.GetMessageStream(c.Request.Context(), thread)
	if err != nil {
		_ = c.Error(err)
		return
	}
	export, err := h.exporter.ExportTranscript(c.Request.Context(), thread, ms.Value())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(export))
}

// thread resolves the :id path parameter, carrying the listed topic when the
// thread is known.
func (h *ThreadHandler) thread(c *gin.Context) (domain.Thread, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return domain.Thread{}, acs_errors.ErrInvalidThread
	}
	for _, t := range h.service.Threads().Value() {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Thread{ID: id}, nil
}

func threadList(threads []domain.Thread) httpdto.ThreadListResponse {
	if threads == nil {
		threads = []domain.Thread{}
	}
	return httpdto.ThreadListResponse{Threads: threads, Count: len(threads)}
}
