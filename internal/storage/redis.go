package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/piwi3910/wpsgate/internal/observability"
)

const (
	// Redis key prefixes
	executionKeyPrefix          = "wpsgate:execution:"
	executionIndexKey           = "wpsgate:executions:all"
	executionServiceIndexPrefix = "wpsgate:executions:service:"

	// ExecutionEventChannel receives a message for every stored change.
	ExecutionEventChannel = "wpsgate:executions:events"
)

// RedisConfig holds configuration for Redis connection.
type RedisConfig struct {
	// Addr is the Redis server address (host:port) for standalone mode.
	// Ignored if UseSentinel is true.
	Addr string

	// Password for Redis authentication.
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// UseSentinel enables Redis Sentinel mode for high availability.
	UseSentinel bool

	// SentinelAddrs is the list of Sentinel server addresses.
	// Required if UseSentinel is true.
	SentinelAddrs []string

	// MasterName is the name of the Redis master in Sentinel mode.
	// Required if UseSentinel is true.
	MasterName string

	// MaxRetries is the maximum number of retries for failed commands.
	MaxRetries int

	// DialTimeout is the timeout for establishing connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// ExecutionTTL is how long a terminal record is kept (0 = forever).
	ExecutionTTL time.Duration

	// AllowInsecureCallbacks permits http:// callback URLs.
	AllowInsecureCallbacks bool

	// Metrics records Redis operation latency. Optional.
	Metrics *observability.Metrics
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		UseSentinel:  false,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		ExecutionTTL: 24 * time.Hour,
	}
}

// RedisStore implements the Store interface using Redis as the backend.
// It supports both standalone Redis and Redis Sentinel for high availability.
//
// Data Model:
//   - wpsgate:execution:<id> (string) - JSON execution record
//   - wpsgate:executions:all (sorted set) - IDs scored by submission time
//   - wpsgate:executions:service:<serviceID> (sorted set) - Index by service
//
// Index entries whose record expired are pruned lazily by List.
type RedisStore struct {
	client redis.UniversalClient
	config *RedisConfig
}

// NewRedisStore creates a new RedisStore instance.
// It automatically configures Redis Sentinel if enabled in the config.
func NewRedisStore(cfg *RedisConfig) *RedisStore {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	var client redis.UniversalClient

	if cfg.UseSentinel {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			MaxRetries:    cfg.MaxRetries,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	}

	return &RedisStore{
		client: client,
		config: cfg,
	}
}

// Client returns the underlying Redis client, shared with the controller
// and the webhook worker.
func (r *RedisStore) Client() redis.UniversalClient {
	return r.client
}

// Create stores a new execution record.
func (r *RedisStore) Create(ctx context.Context, rec *ExecutionRecord) (err error) {
	defer r.observe("create", time.Now(), &err)

	if rec.ID == "" {
		return ErrInvalidID
	}
	if rec.Callback != "" {
		if err := ValidateCallbackURL(rec.Callback, r.config.AllowInsecureCallbacks); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCallback, err)
		}
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	key := executionKeyPrefix + rec.ID

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check execution existence: %w", err)
	}
	if exists > 0 {
		return ErrExecutionExists
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	score := float64(rec.SubmittedAt.UnixNano())
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, r.ttlFor(rec))
	pipe.ZAdd(ctx, executionIndexKey, redis.Z{Score: score, Member: rec.ID})
	if rec.ServiceID != "" {
		pipe.ZAdd(ctx, executionServiceIndexPrefix+rec.ServiceID, redis.Z{Score: score, Member: rec.ID})
	}
	pipe.Publish(ctx, ExecutionEventChannel, eventMessage("created", rec))

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// Get retrieves an execution record by ID.
func (r *RedisStore) Get(ctx context.Context, id string) (rec *ExecutionRecord, err error) {
	defer r.observe("get", time.Now(), &err)

	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := r.client.Get(ctx, executionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	var out ExecutionRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &out, nil
}

// Update replaces an existing execution record.
func (r *RedisStore) Update(ctx context.Context, rec *ExecutionRecord) (err error) {
	defer r.observe("update", time.Now(), &err)

	if rec.ID == "" {
		return ErrInvalidID
	}

	existing, err := r.Get(ctx, rec.ID)
	if err != nil {
		return err
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	if rec.Callback == "" {
		rec.Callback = existing.Callback
	}
	if rec.ServiceID == "" {
		rec.ServiceID = existing.ServiceID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, executionKeyPrefix+rec.ID, data, r.ttlFor(rec))
	pipe.Publish(ctx, ExecutionEventChannel, eventMessage("updated", rec))

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return nil
}

// Delete deletes an execution record by ID.
func (r *RedisStore) Delete(ctx context.Context, id string) (err error) {
	defer r.observe("delete", time.Now(), &err)

	if id == "" {
		return ErrInvalidID
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, executionKeyPrefix+id)
	pipe.ZRem(ctx, executionIndexKey, id)
	if existing.ServiceID != "" {
		pipe.ZRem(ctx, executionServiceIndexPrefix+existing.ServiceID, id)
	}
	pipe.Publish(ctx, ExecutionEventChannel, eventMessage("deleted", existing))

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}
	return nil
}

// List retrieves the records matching filter in submission order.
func (r *RedisStore) List(ctx context.Context, filter ExecutionFilter) (recs []*ExecutionRecord, err error) {
	defer r.observe("list", time.Now(), &err)

	indexKey := executionIndexKey
	if filter.ServiceID != "" {
		indexKey = executionServiceIndexPrefix + filter.ServiceID
	}

	ids, err := r.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list execution IDs: %w", err)
	}

	out := make([]*ExecutionRecord, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if errors.Is(err, ErrExecutionNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			// Skip records that failed to load (e.g., corrupted data)
			continue
		}
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}

	if len(stale) > 0 {
		pipe := r.client.Pipeline()
		pipe.ZRem(ctx, executionIndexKey, stale...)
		if filter.ServiceID != "" {
			pipe.ZRem(ctx, indexKey, stale...)
		}
		_, _ = pipe.Exec(ctx)
	}

	return out, nil
}

// Close closes the Redis connection and releases resources.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is available.
// Returns ErrStorageUnavailable if Redis cannot be reached.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if r.config.Metrics != nil {
		if stats := r.client.PoolStats(); stats != nil {
			r.config.Metrics.SetRedisConnectionsActive(int(stats.TotalConns - stats.IdleConns))
		}
	}
	return nil
}

// ttlFor returns the expiry of a record: running executions never expire.
func (r *RedisStore) ttlFor(rec *ExecutionRecord) time.Duration {
	if rec.Status.Terminal() {
		return r.config.ExecutionTTL
	}
	return 0
}

func (r *RedisStore) observe(op string, start time.Time, err *error) {
	if r.config.Metrics == nil {
		return
	}
	var opErr error
	if err != nil && *err != nil && !errors.Is(*err, ErrExecutionNotFound) {
		opErr = *err
	}
	r.config.Metrics.RecordRedisOperation(op, time.Since(start), opErr)
}

func eventMessage(event string, rec *ExecutionRecord) []byte {
	b, _ := json.Marshal(map[string]string{
		"event":  event,
		"id":     rec.ID,
		"status": string(rec.Status),
	})
	return b
}

// ValidateCallbackURL checks that callback is an absolute http(s) URL.
// Plain http is accepted only when allowInsecure is set.
func ValidateCallbackURL(callback string, allowInsecure bool) error {
	u, err := url.Parse(callback)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !allowInsecure {
			return fmt.Errorf("callback URL must use https")
		}
	default:
		return fmt.Errorf("callback URL must use http or https scheme")
	}

	if u.Host == "" {
		return fmt.Errorf("callback URL must have a host")
	}

	return nil
}
