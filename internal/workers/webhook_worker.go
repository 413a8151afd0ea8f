// Package workers provides background workers for execution notifications.
// It implements webhook delivery with retry logic and dead letter queues.
package workers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/controllers"
	"github.com/piwi3910/wpsgate/internal/observability"
)

const (
	// EventStreamKey is the Redis Stream key for webhook events.
	EventStreamKey = controllers.EventStreamKey

	// DLQStreamKey is the Redis Stream key for dead letter queue.
	DLQStreamKey = "wpsgate:dlq"

	// ConsumerGroup is the consumer group name for webhook workers.
	ConsumerGroup = "webhook-workers"

	// DefaultWorkerCount is the default number of worker goroutines.
	DefaultWorkerCount = 4

	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default maximum number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the default base backoff duration for retries.
	DefaultRetryBackoff = 1 * time.Second

	// DefaultMaxBackoff is the default maximum backoff duration.
	DefaultMaxBackoff = 5 * time.Minute

	// DefaultReadBlock is how long a worker blocks waiting for new events.
	DefaultReadBlock = 5 * time.Second

	// Notification headers.
	HeaderEventType      = "X-WPSGate-Event-Type"
	HeaderNotificationID = "X-WPSGate-Notification-ID"
	HeaderExecutionID    = "X-WPSGate-Execution-ID"
	HeaderSignature      = "X-WPSGate-Signature"

	maxResponseBody = 4096
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// WebhookWorker processes execution notifications from a Redis Stream.
type WebhookWorker struct {
	// redisClient is used for stream operations.
	redisClient redis.UniversalClient

	// HTTPClient is used for webhook delivery.
	HTTPClient *http.Client

	// logger provides structured logging.
	logger *zap.Logger

	// metrics records delivery outcomes. Optional.
	metrics *observability.Metrics

	// WorkerCount is the number of worker goroutines.
	WorkerCount int

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// retryBackoff is the base backoff duration for retries.
	retryBackoff time.Duration

	// maxBackoff is the maximum backoff duration.
	maxBackoff time.Duration

	// readBlock bounds each blocking stream read.
	readBlock time.Duration

	// HMACSecret is the secret key for HMAC signature generation.
	HMACSecret string

	// stopCh is used to signal worker shutdown.
	stopCh   chan struct{}
	stopOnce sync.Once

	// wg tracks running goroutines.
	wg sync.WaitGroup
}

// Config holds configuration for creating a WebhookWorker.
type Config struct {
	// RedisClient is used for stream operations.
	RedisClient redis.UniversalClient

	// Logger is the logger to use.
	Logger *zap.Logger

	// Metrics records delivery outcomes. Optional.
	Metrics *observability.Metrics

	// WorkerCount is the number of worker goroutines (default: 4).
	WorkerCount int

	// Timeout is the HTTP client timeout (default: 10s).
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts (default: 3).
	MaxRetries int

	// RetryBackoff is the base backoff duration for retries (default: 1s).
	RetryBackoff time.Duration

	// MaxBackoff is the maximum backoff duration (default: 5m).
	MaxBackoff time.Duration

	// ReadBlock bounds each blocking stream read (default: 5s).
	ReadBlock time.Duration

	// HMACSecret is the secret key for HMAC signature generation.
	HMACSecret string
}

// NewWebhookWorker creates a new WebhookWorker.
func NewWebhookWorker(cfg *Config) (*WebhookWorker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.RedisClient == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Set defaults
	workerCount := cfg.WorkerCount
	if workerCount == 0 {
		workerCount = DefaultWorkerCount
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	retryBackoff := cfg.RetryBackoff
	if retryBackoff == 0 {
		retryBackoff = DefaultRetryBackoff
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = DefaultMaxBackoff
	}

	readBlock := cfg.ReadBlock
	if readBlock == 0 {
		readBlock = DefaultReadBlock
	}

	return &WebhookWorker{
		redisClient:  cfg.RedisClient,
		HTTPClient:   &http.Client{Timeout: timeout},
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		WorkerCount:  workerCount,
		MaxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		maxBackoff:   maxBackoff,
		readBlock:    readBlock,
		HMACSecret:   cfg.HMACSecret,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start starts the webhook worker and blocks until ctx is cancelled.
func (w *WebhookWorker) Start(ctx context.Context) error {
	w.logger.Info("starting webhook worker",
		zap.Int("worker_count", w.WorkerCount))

	if err := w.CreateConsumerGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for i := 0; i < w.WorkerCount; i++ {
		w.wg.Add(1)
		consumerName := fmt.Sprintf("worker-%d", i)
		go w.processEvents(ctx, consumerName)
	}

	ActiveWorkersGauge.Set(float64(w.WorkerCount))

	w.logger.Info("webhook worker started successfully")

	select {
	case <-ctx.Done():
	case <-w.stopCh:
	}

	return w.Stop()
}

// Stop stops the webhook worker and waits for all goroutines to finish.
// It is safe to call more than once.
func (w *WebhookWorker) Stop() error {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping webhook worker")
		close(w.stopCh)
	})

	w.wg.Wait()
	ActiveWorkersGauge.Set(0)
	return nil
}

// CreateConsumerGroup creates the Redis Stream consumer group.
func (w *WebhookWorker) CreateConsumerGroup(ctx context.Context) error {
	err := w.redisClient.XGroupCreateMkStream(ctx, EventStreamKey, ConsumerGroup, "0").Err()
	if err != nil {
		if !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}
		w.logger.Debug("consumer group already exists")
		return nil
	}

	w.logger.Info("consumer group created")
	return nil
}

// processEvents processes events from the Redis Stream.
func (w *WebhookWorker) processEvents(ctx context.Context, name string) {
	defer w.wg.Done()

	w.logger.Info("worker started",
		zap.String("consumer", name))

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("worker stopping",
				zap.String("consumer", name))
			return
		case <-ctx.Done():
			w.logger.Info("worker context canceled",
				zap.String("consumer", name))
			return
		default:
			if err := w.ProcessNextEvent(ctx, name); err != nil {
				w.logger.Error("failed to process event",
					zap.String("consumer", name),
					zap.Error(err))
				// Brief pause to avoid a tight loop on persistent errors
				select {
				case <-time.After(time.Second):
				case <-w.stopCh:
				case <-ctx.Done():
				}
			}
		}
	}
}

// ProcessNextEvent reads and processes the next event from the stream.
func (w *WebhookWorker) ProcessNextEvent(ctx context.Context, consumerName string) error {
	streams, err := w.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumerName,
		Streams:  []string{EventStreamKey, ">"},
		Count:    1,
		Block:    w.readBlock,
	}).Result()

	if err != nil {
		// Timeout is expected when no events are available
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := w.HandleMessage(ctx, consumerName, message); err != nil {
				w.logger.Error("failed to handle message",
					zap.String("message_id", message.ID),
					zap.Error(err))
			}
		}
	}

	if n, err := w.redisClient.XLen(ctx, EventStreamKey).Result(); err == nil {
		EventStreamLengthGauge.Set(float64(n))
	}

	return nil
}

// HandleMessage delivers a single message from the stream and acknowledges it.
// Undeliverable events end up in the dead letter queue.
func (w *WebhookWorker) HandleMessage(ctx context.Context, _ string, msg redis.XMessage) error {
	eventData, ok := msg.Values["event"].(string)
	if !ok {
		w.logger.Error("invalid event data in message",
			zap.String("message_id", msg.ID))
		return w.AcknowledgeMessage(ctx, msg.ID)
	}

	var event controllers.ExecutionEvent
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		w.logger.Error("failed to unmarshal event",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return w.AcknowledgeMessage(ctx, msg.ID)
	}

	startTime := time.Now()
	if err := w.DeliverWithRetries(ctx, &event); err != nil {
		w.logger.Error("failed to deliver webhook",
			zap.String("execution_id", event.ExecutionID),
			zap.Error(err))

		WebhookDeliveriesTotal.WithLabelValues(string(event.Status), "failed").Inc()

		if err := w.MoveToDLQ(ctx, &event, msg.ID, err); err != nil {
			w.logger.Error("failed to move to DLQ",
				zap.Error(err))
		}
	} else {
		WebhookDeliveriesTotal.WithLabelValues(string(event.Status), "success").Inc()
		WebhookLatency.WithLabelValues(string(event.Status)).Observe(time.Since(startTime).Seconds())
	}

	return w.AcknowledgeMessage(ctx, msg.ID)
}

// DeliverWithRetries attempts webhook delivery with exponential backoff.
// Permanent failures are not retried.
func (w *WebhookWorker) DeliverWithRetries(ctx context.Context, event *controllers.ExecutionEvent) error {
	var lastErr error

	for attempt := 0; attempt <= w.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.Backoff(attempt)

			w.logger.Info("retrying webhook delivery",
				zap.String("execution_id", event.ExecutionID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))

			WebhookRetriesTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()

			select {
			case <-time.After(backoff):
			case <-w.stopCh:
				return fmt.Errorf("worker stopped during retry: %w", lastErr)
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry: %w", ctx.Err())
			}
		}

		err := w.DeliverWebhook(ctx, event)
		if err == nil {
			w.logger.Info("webhook delivered successfully",
				zap.String("execution_id", event.ExecutionID),
				zap.Int("attempts", attempt+1))
			return nil
		}

		lastErr = err
		w.logger.Warn("webhook delivery failed",
			zap.String("execution_id", event.ExecutionID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if errors.Is(err, ErrPermanent) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Backoff returns the delay before the given retry attempt (1-based).
func (w *WebhookWorker) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	backoff := w.retryBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= w.maxBackoff {
			return w.maxBackoff
		}
	}
	if backoff > w.maxBackoff {
		return w.maxBackoff
	}
	return backoff
}

// DeliverWebhook delivers a webhook notification via HTTP POST.
func (w *WebhookWorker) DeliverWebhook(ctx context.Context, event *controllers.ExecutionEvent) (err error) {
	start := time.Now()
	statusCode := 0
	defer func() {
		if w.metrics != nil {
			w.metrics.RecordWebhookDelivery(time.Since(start), statusCode, err)
		}
	}()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, event.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrPermanent, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set(HeaderNotificationID, event.NotificationID)
	req.Header.Set(HeaderExecutionID, event.ExecutionID)

	if w.HMACSecret != "" {
		req.Header.Set(HeaderSignature, w.GenerateHMAC(payload))
	}

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			w.logger.Warn("failed to close response body",
				zap.Error(closeErr))
		}
	}()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	err = fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(respBody))
	if isPermanentStatus(resp.StatusCode) {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}

// isPermanentStatus reports whether a client error should not be retried.
func isPermanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	return code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// GenerateHMAC generates an HMAC-SHA256 signature for the payload.
func (w *WebhookWorker) GenerateHMAC(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(w.HMACSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// AcknowledgeMessage acknowledges a message to remove it from pending.
func (w *WebhookWorker) AcknowledgeMessage(ctx context.Context, messageID string) error {
	if err := w.redisClient.XAck(ctx, EventStreamKey, ConsumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// MoveToDLQ moves a failed event to the dead letter queue.
func (w *WebhookWorker) MoveToDLQ(ctx context.Context, event *controllers.ExecutionEvent, messageID string, cause error) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	values := map[string]interface{}{
		"event":        string(data),
		"original_id":  messageID,
		"failed_at":    time.Now().UTC().Format(time.RFC3339),
		"execution_id": event.ExecutionID,
	}
	if cause != nil {
		values["error"] = cause.Error()
	}

	args := &redis.XAddArgs{
		Stream: DLQStreamKey,
		MaxLen: controllers.MaxStreamLength,
		Approx: true,
		Values: values,
	}

	if _, err := w.redisClient.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to DLQ: %w", err)
	}

	w.logger.Info("event moved to DLQ",
		zap.String("execution_id", event.ExecutionID),
		zap.String("message_id", messageID))

	DeadLetterQueueTotal.WithLabelValues(string(event.Status)).Inc()

	return nil
}
