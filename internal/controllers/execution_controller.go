// Package controllers implements the execution controller, which owns the
// live WPS executions of the gateway, persists every status transition and
// queues notification events for executions submitted with a callback.
package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/observability"
	"github.com/piwi3910/wpsgate/internal/storage"
	"github.com/piwi3910/wpsgate/internal/wps/execution"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
	"github.com/piwi3910/wpsgate/internal/wps/service"
	"github.com/piwi3910/wpsgate/internal/wpsclient"
)

const (
	// EventStreamKey is the Redis Stream key for execution notifications.
	EventStreamKey = "wpsgate:events"

	// MaxStreamLength is the maximum number of events to keep in the stream.
	MaxStreamLength = 10000

	// EventTypePrefix prefixes the status in ExecutionEvent.EventType.
	EventTypePrefix = "wps.Execution."

	// DefaultPersistTimeout bounds each store write made on a transition.
	DefaultPersistTimeout = 5 * time.Second

	// MessageOrphaned is set on records left running by a previous process.
	MessageOrphaned = "Gateway restarted while the execution was running"
)

var (
	// ErrExecutionNotLive is returned when cancelling an execution this
	// controller is not polling.
	ErrExecutionNotLive = errors.New("execution is not running")

	// ErrNotRunning is returned by Submit after Stop.
	ErrNotRunning = errors.New("execution controller is stopped")
)

// ExecutionEvent is a settled execution queued for webhook delivery.
type ExecutionEvent struct {
	ExecutionID     string           `json:"executionId"`
	EventType       string           `json:"eventType"`
	ServiceURL      string           `json:"serviceUrl"`
	ProcessID       string           `json:"processId"`
	Status          execution.Status `json:"status"`
	StatusMessage   string           `json:"statusMessage"`
	PercentComplete int              `json:"percentComplete"`
	Timestamp       time.Time        `json:"timestamp"`
	NotificationID  string           `json:"notificationId"`
	CallbackURL     string           `json:"callbackUrl"`
}

// Executor submits Execute requests. *wpsclient.Client implements it.
type Executor interface {
	Execute(
		ctx context.Context,
		svc *service.Service,
		id string,
		values process.Values,
		outputs []service.OutputSelection,
		opts wpsclient.ExecuteOptions,
	) (*execution.Execution, ows.Warnings, error)
}

// Submission describes one Execute call made through the controller.
type Submission struct {
	// ServiceID is the registry ID of the service.
	ServiceID string

	// Service is the target service.
	Service *service.Service

	// ProcessID identifies the process to run.
	ProcessID string

	// Values are the input values by input identifier.
	Values process.Values

	// Outputs selects the outputs to request. Empty requests all.
	Outputs []service.OutputSelection

	// Callback receives a notification once the execution settles. Optional.
	Callback string
}

// ExecutionController tracks live executions.
type ExecutionController struct {
	executor    Executor
	store       storage.Store
	redisClient redis.UniversalClient
	logger      *observability.Logger
	metrics     *observability.Metrics

	allowInsecure  bool
	persistTimeout time.Duration

	mu      sync.Mutex
	live    map[string]*execution.Execution
	stopped bool
	wg      sync.WaitGroup
}

// Config holds configuration for creating an ExecutionController.
type Config struct {
	// Executor submits Execute requests.
	Executor Executor

	// Store persists execution records.
	Store storage.Store

	// RedisClient is used to queue notification events.
	RedisClient redis.UniversalClient

	// Logger is the logger to use.
	Logger *zap.Logger

	// Metrics records execution transitions. Optional.
	Metrics *observability.Metrics

	// AllowInsecureCallbacks permits http:// callback URLs.
	AllowInsecureCallbacks bool

	// PersistTimeout bounds each store write. Default: 5 seconds.
	PersistTimeout time.Duration
}

// NewExecutionController creates a new execution controller.
func NewExecutionController(cfg *Config) (*ExecutionController, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.RedisClient == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	timeout := cfg.PersistTimeout
	if timeout == 0 {
		timeout = DefaultPersistTimeout
	}

	return &ExecutionController{
		executor:       cfg.Executor,
		store:          cfg.Store,
		redisClient:    cfg.RedisClient,
		logger:         observability.NewLogger(cfg.Logger).WithComponent("execution-controller"),
		metrics:        cfg.Metrics,
		allowInsecure:  cfg.AllowInsecureCallbacks,
		persistTimeout: timeout,
		live:           make(map[string]*execution.Execution),
	}, nil
}

// Start reconciles the store with this process: records a previous gateway
// left in a non-terminal state can no longer be polled and are settled as
// Unknown.
func (c *ExecutionController) Start(ctx context.Context) error {
	c.logger.Info("starting execution controller")

	recs, err := c.store.List(ctx, storage.ExecutionFilter{})
	if err != nil {
		return fmt.Errorf("failed to list executions: %w", err)
	}

	orphaned := 0
	for _, rec := range recs {
		if rec.Status.Terminal() || c.isLive(rec.ID) {
			continue
		}
		from := rec.Status
		rec.Status = execution.StatusUnknown
		rec.StatusMessage = MessageOrphaned
		if err := c.store.Update(ctx, rec); err != nil {
			c.logger.Error("failed to settle orphaned execution",
				zap.String("execution_id", rec.ID),
				zap.Error(err))
			continue
		}
		orphaned++
		OrphansSettledTotal.Inc()
		c.logger.LogExecutionTransition(rec.ID, string(from), string(rec.Status), nil)
		if rec.Callback != "" {
			c.queueSettled(ctx, rec)
		}
	}

	c.logger.Info("execution controller started",
		zap.Int("executions", len(recs)),
		zap.Int("orphaned", orphaned))
	return nil
}

// Stop cancels every live execution and waits for them to settle.
func (c *ExecutionController) Stop() {
	c.mu.Lock()
	c.stopped = true
	live := make([]*execution.Execution, 0, len(c.live))
	for _, exec := range c.live {
		live = append(live, exec)
	}
	c.mu.Unlock()

	c.logger.Info("stopping execution controller", zap.Int("live", len(live)))
	for _, exec := range live {
		_ = exec.Cancel()
	}
	c.wg.Wait()
	c.logger.Info("execution controller stopped")
}

// Submit sends an Execute request and tracks the resulting execution. The
// record is persisted before Submit returns; later transitions are persisted
// as the execution is polled.
func (c *ExecutionController) Submit(ctx context.Context, sub Submission) (*storage.ExecutionRecord, ows.Warnings, error) {
	if sub.Service == nil {
		return nil, nil, fmt.Errorf("service cannot be nil")
	}
	if sub.Callback != "" {
		if err := storage.ValidateCallbackURL(sub.Callback, c.allowInsecure); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", storage.ErrInvalidCallback, err)
		}
	}

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return nil, nil, ErrNotRunning
	}

	id := uuid.NewString()
	exec, warnings, err := c.executor.Execute(ctx, sub.Service, sub.ProcessID, sub.Values, sub.Outputs,
		wpsclient.ExecuteOptions{
			ID:       id,
			Observer: c.observer(sub.ServiceID, sub.Callback),
		})
	if err != nil {
		return nil, warnings, err
	}

	c.track(exec)
	SubmittedTotal.WithLabelValues(sub.ServiceID).Inc()

	return &storage.ExecutionRecord{
		Record:    exec.Record(),
		ServiceID: sub.ServiceID,
		Callback:  sub.Callback,
	}, warnings, nil
}

// Cancel cancels a live execution and returns its final state.
func (c *ExecutionController) Cancel(id string) (execution.Record, error) {
	c.mu.Lock()
	exec, ok := c.live[id]
	c.mu.Unlock()
	if !ok {
		return execution.Record{}, fmt.Errorf("%w: %s", ErrExecutionNotLive, id)
	}
	if err := exec.Cancel(); err != nil {
		return execution.Record{}, err
	}
	return exec.Record(), nil
}

// Live returns the current state of a live execution.
func (c *ExecutionController) Live(id string) (execution.Record, bool) {
	c.mu.Lock()
	exec, ok := c.live[id]
	c.mu.Unlock()
	if !ok {
		return execution.Record{}, false
	}
	return exec.Record(), true
}

// LiveCount returns the number of executions being polled.
func (c *ExecutionController) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

func (c *ExecutionController) isLive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live[id]
	return ok
}

// track keeps exec in the live set until it is done.
func (c *ExecutionController) track(exec *execution.Execution) {
	select {
	case <-exec.Done():
		return
	default:
	}

	c.mu.Lock()
	c.live[exec.ID()] = exec
	LiveExecutionsGauge.Set(float64(len(c.live)))
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-exec.Done()
		c.mu.Lock()
		delete(c.live, exec.ID())
		LiveExecutionsGauge.Set(float64(len(c.live)))
		c.mu.Unlock()
	}()
}

// observer persists each transition. The first one creates the record.
func (c *ExecutionController) observer(serviceID, callback string) execution.Observer {
	return func(rec execution.Record, from execution.Status) {
		terminal := rec.Status.Terminal()
		if c.metrics != nil {
			c.metrics.RecordExecutionTransition(string(from), string(rec.Status), terminal, rec.PollCount)
		}
		c.logger.LogExecutionTransition(rec.ID, string(from), string(rec.Status), map[string]interface{}{
			"percentComplete": rec.PercentComplete,
			"pollCount":       rec.PollCount,
		})

		ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
		defer cancel()

		stored := &storage.ExecutionRecord{Record: rec, ServiceID: serviceID, Callback: callback}
		if err := c.persist(ctx, stored, from); err != nil {
			c.logger.Error("failed to persist execution",
				zap.String("execution_id", rec.ID),
				zap.String("status", string(rec.Status)),
				zap.Error(err))
		}

		if terminal {
			SettledTotal.WithLabelValues(string(rec.Status)).Inc()
			if callback != "" {
				c.queueSettled(ctx, stored)
			}
		}
	}
}

func (c *ExecutionController) persist(ctx context.Context, rec *storage.ExecutionRecord, from execution.Status) error {
	if from == execution.StatusInitialized {
		err := c.store.Create(ctx, rec)
		if !errors.Is(err, storage.ErrExecutionExists) {
			return err
		}
	}
	err := c.store.Update(ctx, rec)
	if errors.Is(err, storage.ErrExecutionNotFound) {
		// The record expired or was never created; recreate it.
		return c.store.Create(ctx, rec)
	}
	return err
}

func (c *ExecutionController) queueSettled(ctx context.Context, rec *storage.ExecutionRecord) {
	event := &ExecutionEvent{
		ExecutionID:     rec.ID,
		EventType:       EventTypePrefix + string(rec.Status),
		ServiceURL:      rec.ServiceURL,
		ProcessID:       rec.ProcessID,
		Status:          rec.Status,
		StatusMessage:   rec.StatusMessage,
		PercentComplete: rec.PercentComplete,
		Timestamp:       time.Now().UTC(),
		NotificationID:  uuid.NewString(),
		CallbackURL:     rec.Callback,
	}

	if err := c.queueEvent(ctx, event); err != nil {
		c.logger.Error("failed to queue event",
			zap.Error(err),
			zap.String("execution_id", rec.ID))
		return
	}
	EventsQueuedTotal.WithLabelValues(string(rec.Status)).Inc()
}

// queueEvent adds an event to the Redis Stream for webhook delivery.
func (c *ExecutionController) queueEvent(ctx context.Context, event *ExecutionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: EventStreamKey,
		MaxLen: MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"event": string(data),
		},
	}

	if _, err := c.redisClient.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add event to stream: %w", err)
	}

	c.logger.Debug("event queued",
		zap.String("execution_id", event.ExecutionID),
		zap.String("event_type", event.EventType))

	return nil
}
