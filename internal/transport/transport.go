// Package transport sends WPS requests over HTTP. Every remote host gets its
// own token-bucket limiter so one slow or strict server cannot be flooded by
// polling executions.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/piwi3910/wpsgate/internal/wps/service"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond is the default outbound rate per WPS host.
	DefaultRequestsPerSecond = 5.0

	// DefaultBurst is the default limiter burst per WPS host.
	DefaultBurst = 10

	// DefaultMaxBodyBytes caps a response body.
	DefaultMaxBodyBytes = 64 << 20

	// DefaultUserAgent identifies the gateway to WPS servers.
	DefaultUserAgent = "wpsgate/1.0"

	opStatus = "Status"
)

// ErrBodyTooLarge is returned when a response exceeds the configured body limit.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is returned for non-2xx answers. WPS servers often report
// failures as an ExceptionReport with a 4xx or 5xx status, so the body is kept.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

// Response is a successful HTTP answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends WPS requests and fetches status documents.
type Transport interface {
	Send(ctx context.Context, req service.Request) (*Response, error)
	FetchStatus(ctx context.Context, statusURL string) ([]byte, error)
}

// Config holds configuration for creating an HTTPClient.
type Config struct {
	// Logger is the logger to use.
	Logger *zap.Logger

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// RequestsPerSecond is the outbound rate per host (default: 5).
	RequestsPerSecond float64

	// Burst is the limiter burst per host (default: 10).
	Burst int

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodyBytes caps response bodies (default: 64 MiB).
	MaxBodyBytes int64

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
}

// HTTPClient is the HTTP Transport.
type HTTPClient struct {
	client    *http.Client
	logger    *zap.Logger
	userAgent string
	limit     rate.Limit
	burst     int
	maxBody   int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(cfg *Config) (*HTTPClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = DefaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = DefaultBurst
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPClient{
		client:    client,
		logger:    cfg.Logger,
		userAgent: ua,
		limit:     rate.Limit(rps),
		burst:     burst,
		maxBody:   maxBody,
		limiters:  make(map[string]*rate.Limiter),
	}, nil
}

// Send performs a GetCapabilities, DescribeProcess or Execute request.
func (c *HTTPClient) Send(ctx context.Context, req service.Request) (*Response, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", req.Operation, err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	return c.do(httpReq, req.Operation)
}

// FetchStatus retrieves the document at an execution's status location.
func (c *HTTPClient) FetchStatus(ctx context.Context, statusURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	resp, err := c.do(httpReq, opStatus)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *HTTPClient) do(req *http.Request, operation string) (*Response, error) {
	host := req.URL.Host
	if err := c.limiter(host).Wait(req.Context()); err != nil {
		RateLimitedTotal.WithLabelValues(host).Inc()
		return nil, fmt.Errorf("rate limit wait for %s: %w", host, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/xml, application/xml")

	start := time.Now()
	resp, err := c.client.Do(req)
	RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.Warn("wps request failed",
			zap.String("operation", operation),
			zap.String("url", redact(req.URL)),
			zap.Error(err))
		return nil, fmt.Errorf("%s request to %s failed: %w", operation, host, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", zap.Error(cerr))
		}
	}()

	RequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s answered more than %d bytes", ErrBodyTooLarge, host, c.maxBody)
	}

	c.logger.Debug("wps request completed",
		zap.String("operation", operation),
		zap.String("url", redact(req.URL)),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: redact(req.URL), StatusCode: resp.StatusCode, Body: data}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *HTTPClient) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[host] = l
	}
	return l
}

// redact drops credentials embedded in a URL before it is logged.
func redact(u *url.URL) string {
	if u.User == nil {
		return u.String()
	}
	cp := *u
	cp.User = url.User("redacted")
	return cp.String()
}
