package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitKeyPrefix namespaces rate limit buckets in Redis.
const RateLimitKeyPrefix = "wpsgate:ratelimit:"

// tokenBucketScript refills a bucket by the elapsed milliseconds and takes
// one token when available. Returns {allowed, remaining, burst, retry_ms}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local burst = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local tokens_key = key .. ":tokens"
	local timestamp_key = key .. ":ts"

	local tokens = tonumber(redis.call('GET', tokens_key) or burst)
	local last_update = tonumber(redis.call('GET', timestamp_key) or now)

	local elapsed = math.max(0, now - last_update)
	tokens = math.min(burst, tokens + elapsed * rate)

	local allowed = 0
	local retry = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry = math.ceil((1 - tokens) / rate)
	end

	redis.call('SET', tokens_key, tostring(tokens), 'PX', ttl)
	redis.call('SET', timestamp_key, now, 'PX', ttl)
	return {allowed, math.floor(tokens), burst, retry}
`)

// RateLimiter provides distributed rate limiting using Redis.
// Each limit is a token bucket keyed by client, endpoint or the whole gateway.
type RateLimiter struct {
	client redis.UniversalClient
	logger *zap.Logger
	config *RateLimitConfig
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active
	Enabled bool

	// PerClient limits each client IP
	PerClient ClientLimitConfig

	// PerEndpoint configures per-endpoint rate limits, applied per client
	PerEndpoint []EndpointLimitConfig

	// Global limits the whole gateway
	Global GlobalLimitConfig

	// RedisClient is the Redis client for distributed limiting
	RedisClient redis.UniversalClient
}

// ClientLimitConfig allows Requests per Window for each client.
type ClientLimitConfig struct {
	Requests  int
	Window    time.Duration
	BurstSize int
}

// EndpointLimitConfig configures rate limits for specific endpoints.
// Path is the gin route pattern, e.g. /wps/v1/services/:serviceId/processes/:processId/executions.
type EndpointLimitConfig struct {
	Path              string
	Method            string
	RequestsPerSecond int
	BurstSize         int
}

// GlobalLimitConfig configures global rate limits.
type GlobalLimitConfig struct {
	RequestsPerSecond int
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config *RateLimitConfig, logger *zap.Logger) (*RateLimiter, error) {
	if config == nil {
		return nil, fmt.Errorf("rate limit config cannot be nil")
	}
	if config.RedisClient == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := config.RedisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RateLimiter{
		client: config.RedisClient,
		logger: logger,
		config: config,
	}, nil
}

// Middleware returns a Gin middleware function for rate limiting.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		clientID := c.ClientIP()

		if limit := rl.getEndpointLimit(c.Request.Method, c.FullPath()); limit != nil {
			key := fmt.Sprintf("endpoint:%s:%s:%s", clientID, c.Request.Method, c.FullPath())
			if !rl.checkLimit(ctx, c, key, float64(limit.RequestsPerSecond), limit.BurstSize) {
				return
			}
		}

		if perSecond := rl.config.PerClient.RatePerSecond(); perSecond > 0 {
			if !rl.checkLimit(ctx, c, "client:"+clientID, perSecond, rl.config.PerClient.Burst()) {
				return
			}
		}

		if rl.config.Global.RequestsPerSecond > 0 {
			if !rl.checkLimit(ctx, c, "global",
				float64(rl.config.Global.RequestsPerSecond), rl.config.Global.BurstSize()) {
				return
			}
		}

		c.Next()
	}
}

// checkLimit takes a token from the bucket under key.
// Returns true if allowed, false if the request was rejected.
func (rl *RateLimiter) checkLimit(ctx context.Context, c *gin.Context, key string, perSecond float64, burst int) bool {
	if burst < 1 {
		burst = 1
	}
	nowMs := time.Now().UnixMilli()
	perMs := perSecond / 1000
	ttlMs := int64(math.Ceil(float64(burst)/perMs)) * 2
	if ttlMs < 1000 {
		ttlMs = 1000
	}

	result, err := tokenBucketScript.Run(ctx, rl.client, []string{RateLimitKeyPrefix + key},
		nowMs, perMs, burst, ttlMs).Int64Slice()
	if err != nil {
		rl.logger.Error("rate limit check failed",
			zap.String("key", key),
			zap.Error(err),
		)
		// Fail open: allow request if Redis fails
		return true
	}
	if len(result) < 4 {
		rl.logger.Error("invalid rate limit result format", zap.Int("len", len(result)))
		return true
	}

	allowed := result[0] == 1
	remaining := result[1]
	limit := result[2]
	retryMs := result[3]

	c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

	if allowed {
		return true
	}

	retryAfter := int64(math.Ceil(float64(retryMs) / 1000))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+retryAfter, 10))
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))

	rl.logger.Warn("rate limit exceeded",
		zap.String("key", key),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("client_ip", c.ClientIP()),
	)

	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":   "RateLimitExceeded",
		"message": fmt.Sprintf("Rate limit exceeded, retry after %d seconds", retryAfter),
		"code":    http.StatusTooManyRequests,
	})
	return false
}

// getEndpointLimit returns the rate limit config for a specific endpoint if configured.
func (rl *RateLimiter) getEndpointLimit(method, path string) *EndpointLimitConfig {
	for i := range rl.config.PerEndpoint {
		limit := &rl.config.PerEndpoint[i]
		if limit.Method == method && limit.Path == path {
			return limit
		}
	}
	return nil
}

// RatePerSecond converts Requests per Window into a refill rate.
func (p ClientLimitConfig) RatePerSecond() float64 {
	if p.Requests <= 0 || p.Window <= 0 {
		return 0
	}
	return float64(p.Requests) / p.Window.Seconds()
}

// Burst defaults to the full window allowance.
func (p ClientLimitConfig) Burst() int {
	if p.BurstSize > 0 {
		return p.BurstSize
	}
	return p.Requests
}

// BurstSize returns the burst size for global limits.
// If not explicitly set, it defaults to 2x the requests per second.
func (g *GlobalLimitConfig) BurstSize() int {
	if g.RequestsPerSecond == 0 {
		return 0
	}
	return g.RequestsPerSecond * 2
}
