package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Logger is a wrapper around zap.Logger with additional convenience methods.
type Logger struct {
	*zap.Logger
}

// NewLogger wraps base. A nil base yields a no-op logger.
func NewLogger(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{Logger: base}
}

// loggerContextKey is the context key for storing logger instances.
type loggerContextKey struct{}

// requestIDContextKey is the context key for the inbound request ID.
type requestIDContextKey struct{}

// WithContext creates a new logger with fields from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := ExtractContextFields(ctx)
	if len(fields) > 0 {
		return &Logger{Logger: l.With(fields...)}
	}
	return l
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(zap.String("component", component))}
}

// ContextWithLogger adds the logger to the context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger from context.
// Returns fallback if the context carries none.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return logger
	}
	return NewLogger(fallback)
}

// ContextWithRequestID stores a request ID for ExtractContextFields.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// ExtractContextFields extracts logging fields from context.
func ExtractContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	return fields
}

// Sync flushes any buffered log entries.
// Should be called before application shutdown.
func (l *Logger) Sync() error {
	if err := l.Logger.Sync(); err != nil {
		return fmt.Errorf("failed to sync logger: %w", err)
	}
	return nil
}

// LogWPSOperation logs an outbound WPS operation against a service.
// processID is empty for GetCapabilities. Failures are logged at warn level:
// they are failures of the remote service, not of the gateway.
func (l *Logger) LogWPSOperation(operation, serviceURL, processID string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("service", serviceURL),
		zap.Duration("duration", duration),
	}
	if processID != "" {
		fields = append(fields, zap.String("process_id", processID))
	}
	if err != nil {
		l.Warn("wps operation failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("wps operation completed", fields...)
}

// LogExecutionTransition logs an execution status change.
func (l *Logger) LogExecutionTransition(executionID, from, to string, details map[string]interface{}) {
	fields := []zap.Field{
		zap.String("executionID", executionID),
		zap.String("from", from),
		zap.String("to", to),
	}

	for key, value := range details {
		fields = append(fields, zap.Any(key, value))
	}

	l.Info("execution transition", fields...)
}
