package handler

import (
	"context"
	"net/http"
	"time"

	"azure-communication/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// StatusSource reports sync state for the health endpoint.
type StatusSource interface {
	ThreadsLoaded() bool
	StreamCount() int
}

type HealthHandler struct {
	status  StatusSource
	clients func() int
	ping    func(ctx context.Context) error
}

// NewHealthHandler builds the handler. clients and ping may be nil; a nil
// ping means Redis is not in use.
func NewHealthHandler(status StatusSource, clients func() int, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{status: status, clients: clients, ping: ping}
}

func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (h *HealthHandler) Health(c *gin.Context) {
	resp := httpdto.HealthResponse{
		Status:        "ok",
		ThreadsLoaded: h.status.ThreadsLoaded(),
		Streams:       h.status.StreamCount(),
	}
	if h.clients != nil {
		resp.Clients = h.clients()
	}
	code := http.StatusOK
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Redis = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Redis = "ok"
		}
	}
	c.JSON(code, httpdto.NewSuccessResponse(resp))
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
