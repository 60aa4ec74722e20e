package middleware

import (
	"context"
	"errors"
	"net/http"

	"azure-communication/internal/transport/azure"
	"azure-communication/internal/transport/httpdto"
	acs_errors "azure-communication/pkg/errors"
	"azure-communication/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error a handler attached with c.Error, unless
// the handler already wrote a response.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, code := Classify(err)
		log := logger.OrNop(l).WithContext(c.Request.Context())
		if status >= http.StatusInternalServerError {
			log.Errorf("request error: %s", err.Error())
		} else {
			log.Debugf("request rejected: %s", err.Error())
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
	}
}

// Classify maps an error to an HTTP status and response code.
func Classify(err error) (int, string) {
	var respErr *azure.ResponseError
	switch {
	case errors.Is(err, acs_errors.ErrInvalidThread):
		return http.StatusNotFound, "INVALID_THREAD"
	case errors.Is(err, acs_errors.ErrNotFound), errors.Is(err, acs_errors.ErrNotConfigured):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, acs_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, acs_errors.ErrUnauthorized):
		return http.StatusBadGateway, "UPSTREAM_UNAUTHORIZED"
	case errors.Is(err, acs_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.As(err, &respErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
