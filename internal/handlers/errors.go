// Package handlers implements the gin handlers of the WPS gateway API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/controllers"
	"github.com/piwi3910/wpsgate/internal/models"
	"github.com/piwi3910/wpsgate/internal/observability"
	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/storage"
	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/service"
)

// Error kinds reported in models.ErrorResponse.Error.
const (
	ErrKindBadRequest         = "BadRequest"
	ErrKindNotFound           = "NotFound"
	ErrKindConflict           = "Conflict"
	ErrKindBadGateway         = "BadGateway"
	ErrKindGatewayTimeout     = "GatewayTimeout"
	ErrKindServiceUnavailable = "ServiceUnavailable"
	ErrKindInternal           = "InternalError"
)

func respondError(c *gin.Context, status int, kind, message string) {
	c.JSON(status, models.ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    status,
	})
}

// statusFor maps a domain error to an HTTP status and error kind.
// Errors not listed are failures of the remote WPS and map to 502.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrURL),
		errors.Is(err, registry.ErrHostNotAllowed),
		errors.Is(err, storage.ErrInvalidCallback),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, data.ErrEmptyValue),
		errors.Is(err, data.ErrValueNotAllowed),
		errors.Is(err, data.ErrInvalidValue),
		errors.Is(err, data.ErrNoBoundingBox),
		errors.Is(err, data.ErrReprojectionUnavailable),
		errors.Is(err, data.ErrNoSourceLayer),
		errors.Is(err, data.ErrUnsupportedSourceKind),
		errors.Is(err, data.ErrValueKind),
		errors.Is(err, data.ErrLiteralModeUnset),
		errors.Is(err, service.ErrUnknownOutput):
		return http.StatusBadRequest, ErrKindBadRequest
	case errors.Is(err, registry.ErrServiceNotFound),
		errors.Is(err, service.ErrUnknownProcess),
		errors.Is(err, storage.ErrExecutionNotFound):
		return http.StatusNotFound, ErrKindNotFound
	case errors.Is(err, registry.ErrServiceExists),
		errors.Is(err, controllers.ErrExecutionNotLive):
		return http.StatusConflict, ErrKindConflict
	case errors.Is(err, storage.ErrStorageUnavailable),
		errors.Is(err, controllers.ErrNotRunning):
		return http.StatusServiceUnavailable, ErrKindServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrKindGatewayTimeout
	default:
		return http.StatusBadGateway, ErrKindBadGateway
	}
}

// fail logs err and writes the mapped error response.
func fail(c *gin.Context, base *zap.Logger, msg string, err error) {
	logger := observability.LoggerFromContext(c.Request.Context(), base)
	status, kind := statusFor(err)
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(msg, fields...)
	} else {
		logger.Info(msg, fields...)
	}
	respondError(c, status, kind, err.Error())
}

// logWarnings reports parse warnings. They are also returned to the caller.
func logWarnings(logger *zap.Logger, msg string, warnings ows.Warnings, fields ...zap.Field) {
	if len(warnings) == 0 {
		return
	}
	logger.Warn(msg, append(fields,
		zap.Int("count", len(warnings)),
		zap.Stringers("warnings", warnings),
	)...)
}
