package workers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/piwi3910/wpsgate/internal/controllers"
	"github.com/piwi3910/wpsgate/internal/wps/execution"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newWorker(t *testing.T, rdb redis.UniversalClient, mutate func(*Config)) *WebhookWorker {
	t.Helper()
	cfg := &Config{
		RedisClient:  rdb,
		Logger:       zaptest.NewLogger(t),
		WorkerCount:  1,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		MaxBackoff:   5 * time.Millisecond,
		ReadBlock:    20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(cfg)
	}
	w, err := NewWebhookWorker(cfg)
	require.NoError(t, err)
	return w
}

func testEvent(callback string) *controllers.ExecutionEvent {
	return &controllers.ExecutionEvent{
		ExecutionID:     "exec-1",
		EventType:       "wps.Execution.ProcessSucceeded",
		ServiceURL:      "http://wps.example.org/wps",
		ProcessID:       "echo",
		Status:          execution.StatusSucceeded,
		StatusMessage:   "Done",
		PercentComplete: 100,
		Timestamp:       time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
		NotificationID:  "notif-1",
		CallbackURL:     callback,
	}
}

func queue(t *testing.T, rdb redis.UniversalClient, event *controllers.ExecutionEvent) string {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	id, err := rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: EventStreamKey,
		Values: map[string]interface{}{"event": string(data)},
	}).Result()
	require.NoError(t, err)
	return id
}

func TestNewWebhookWorker(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
			errMsg:  "config cannot be nil",
		},
		{
			name: "nil redis client",
			cfg: &Config{
				Logger: zaptest.NewLogger(t),
			},
			wantErr: true,
			errMsg:  "redis client cannot be nil",
		},
		{
			name: "nil logger",
			cfg: &Config{
				RedisClient: &redis.Client{},
			},
			wantErr: true,
			errMsg:  "logger cannot be nil",
		},
		{
			name: "valid config with defaults",
			cfg: &Config{
				RedisClient: &redis.Client{},
				Logger:      zaptest.NewLogger(t),
			},
			wantErr: false,
		},
		{
			name: "valid config with custom values",
			cfg: &Config{
				RedisClient:  &redis.Client{},
				Logger:       zaptest.NewLogger(t),
				WorkerCount:  5,
				Timeout:      30 * time.Second,
				MaxRetries:   5,
				RetryBackoff: 2 * time.Second,
				MaxBackoff:   10 * time.Minute,
				HMACSecret:   "test-secret",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker, err := NewWebhookWorker(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, worker)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, worker.HTTPClient)

			if tt.cfg.WorkerCount > 0 {
				assert.Equal(t, tt.cfg.WorkerCount, worker.WorkerCount)
			} else {
				assert.Equal(t, DefaultWorkerCount, worker.WorkerCount)
			}

			if tt.cfg.MaxRetries > 0 {
				assert.Equal(t, tt.cfg.MaxRetries, worker.MaxRetries)
			} else {
				assert.Equal(t, DefaultMaxRetries, worker.MaxRetries)
			}
			assert.Equal(t, tt.cfg.HMACSecret, worker.HMACSecret)
		})
	}
}

func TestWebhookWorker_DeliverWebhook_Success(t *testing.T) {
	rdb := newRedis(t)

	received := make(chan controllers.ExecutionEvent, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "wps.Execution.ProcessSucceeded", r.Header.Get(HeaderEventType))
		assert.Equal(t, "notif-1", r.Header.Get(HeaderNotificationID))
		assert.Equal(t, "exec-1", r.Header.Get(HeaderExecutionID))
		assert.Empty(t, r.Header.Get(HeaderSignature))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var event controllers.ExecutionEvent
		assert.NoError(t, json.Unmarshal(body, &event))
		received <- event

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	worker := newWorker(t, rdb, nil)
	require.NoError(t, worker.DeliverWebhook(context.Background(), testEvent(server.URL)))

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, execution.StatusSucceeded, event.Status)
		assert.Equal(t, 100, event.PercentComplete)
		assert.Equal(t, "echo", event.ProcessID)
	case <-time.After(time.Second):
		t.Fatal("webhook not received")
	}
}

func TestWebhookWorker_DeliverWebhook_WithHMAC(t *testing.T) {
	rdb := newRedis(t)
	const secret = "test-secret"

	var gotSig, wantSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		wantSig = hex.EncodeToString(mac.Sum(nil))
		gotSig = r.Header.Get(HeaderSignature)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := newWorker(t, rdb, func(c *Config) { c.HMACSecret = secret })
	require.NoError(t, worker.DeliverWebhook(context.Background(), testEvent(server.URL)))

	assert.NotEmpty(t, gotSig)
	assert.Equal(t, wantSig, gotSig)
}

func TestWebhookWorker_DeliverWebhook_Failure(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{name: "server error", status: http.StatusInternalServerError, permanent: false},
		{name: "bad gateway", status: http.StatusBadGateway, permanent: false},
		{name: "not found", status: http.StatusNotFound, permanent: true},
		{name: "too many requests", status: http.StatusTooManyRequests, permanent: false},
		{name: "request timeout", status: http.StatusRequestTimeout, permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			worker := newWorker(t, newRedis(t), nil)
			err := worker.DeliverWebhook(context.Background(), testEvent(server.URL))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "non-2xx status")
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tt.permanent, isPermanentError(err))
		})
	}
}

func isPermanentError(err error) bool {
	return errors.Is(err, ErrPermanent)
}

func TestWebhookWorker_DeliverWithRetries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := newWorker(t, newRedis(t), nil)
	require.NoError(t, worker.DeliverWithRetries(context.Background(), testEvent(server.URL)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestWebhookWorker_DeliverWithRetries_MaxRetriesExceeded(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	worker := newWorker(t, newRedis(t), nil)
	err := worker.DeliverWithRetries(context.Background(), testEvent(server.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestWebhookWorker_DeliverWithRetries_PermanentFailure(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	worker := newWorker(t, newRedis(t), nil)
	err := worker.DeliverWithRetries(context.Background(), testEvent(server.URL))
	require.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestWebhookWorker_DeliverWithRetries_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	worker := newWorker(t, newRedis(t), func(c *Config) {
		c.RetryBackoff = time.Hour
		c.MaxBackoff = time.Hour
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := worker.DeliverWithRetries(ctx, testEvent(server.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled during retry")
}

func TestWebhookWorker_Backoff(t *testing.T) {
	worker := newWorker(t, newRedis(t), func(c *Config) {
		c.RetryBackoff = time.Second
		c.MaxBackoff = 5 * time.Second
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 0},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 5 * time.Second},
		{attempt: 64, want: 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, worker.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestWebhookWorker_GenerateHMAC(t *testing.T) {
	worker := newWorker(t, newRedis(t), func(c *Config) { c.HMACSecret = "test-secret" })

	payload := []byte(`{"executionId":"exec-1"}`)
	sig1 := worker.GenerateHMAC(payload)
	sig2 := worker.GenerateHMAC(payload)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64)

	assert.NotEqual(t, sig1, worker.GenerateHMAC([]byte(`{"executionId":"exec-2"}`)))
}

func TestWebhookWorker_MoveToDLQ(t *testing.T) {
	rdb := newRedis(t)
	worker := newWorker(t, rdb, nil)
	ctx := context.Background()

	event := testEvent("https://client.example.com/notify")
	require.NoError(t, worker.MoveToDLQ(ctx, event, "1-0", assert.AnError))

	msgs, err := rdb.XRange(ctx, DLQStreamKey, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "1-0", msgs[0].Values["original_id"])
	assert.Equal(t, "exec-1", msgs[0].Values["execution_id"])
	assert.Equal(t, assert.AnError.Error(), msgs[0].Values["error"])
	assert.NotEmpty(t, msgs[0].Values["failed_at"])

	var stored controllers.ExecutionEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["event"].(string)), &stored))
	assert.Equal(t, event.NotificationID, stored.NotificationID)
}

func TestWebhookWorker_CreateConsumerGroup_Idempotent(t *testing.T) {
	rdb := newRedis(t)
	worker := newWorker(t, rdb, nil)
	ctx := context.Background()

	require.NoError(t, worker.CreateConsumerGroup(ctx))
	require.NoError(t, worker.CreateConsumerGroup(ctx))

	pending, err := rdb.XPending(ctx, EventStreamKey, ConsumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestWebhookWorker_ProcessNextEvent(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := newWorker(t, rdb, nil)
	require.NoError(t, worker.CreateConsumerGroup(ctx))
	queue(t, rdb, testEvent(server.URL))

	require.NoError(t, worker.ProcessNextEvent(ctx, "worker-0"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	pending, err := rdb.XPending(ctx, EventStreamKey, ConsumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	// Nothing left: the blocking read times out quietly.
	require.NoError(t, worker.ProcessNextEvent(ctx, "worker-0"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestWebhookWorker_HandleMessage_UndeliverableGoesToDLQ(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	worker := newWorker(t, rdb, nil)
	require.NoError(t, worker.CreateConsumerGroup(ctx))
	id := queue(t, rdb, testEvent(server.URL))

	require.NoError(t, worker.ProcessNextEvent(ctx, "worker-0"))

	msgs, err := rdb.XRange(ctx, DLQStreamKey, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].Values["original_id"])

	pending, err := rdb.XPending(ctx, EventStreamKey, ConsumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestWebhookWorker_HandleMessage_InvalidPayload(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()
	worker := newWorker(t, rdb, nil)
	require.NoError(t, worker.CreateConsumerGroup(ctx))

	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{name: "missing event field", values: map[string]interface{}{"other": "x"}},
		{name: "malformed json", values: map[string]interface{}{"event": "{"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rdb.XAdd(ctx, &redis.XAddArgs{Stream: EventStreamKey, Values: tt.values}).Result()
			require.NoError(t, err)
			require.NoError(t, worker.ProcessNextEvent(ctx, "worker-0"))

			pending, err := rdb.XPending(ctx, EventStreamKey, ConsumerGroup).Result()
			require.NoError(t, err)
			assert.Zero(t, pending.Count)
		})
	}

	n, err := rdb.XLen(ctx, DLQStreamKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebhookWorker_StartStop(t *testing.T) {
	rdb := newRedis(t)

	delivered := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.Header.Get(HeaderExecutionID)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := newWorker(t, rdb, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- worker.Start(ctx) }()

	queue(t, rdb, testEvent(server.URL))

	select {
	case id := <-delivered:
		assert.Equal(t, "exec-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.NoError(t, worker.Stop())
}
