// Package registry keeps the WPS services known to the gateway, keyed by
// endpoint URL, and refreshes their capabilities in the background.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/wps/ordered"
	"github.com/piwi3910/wpsgate/internal/wps/service"
)

var (
	// ErrURL is returned for URLs that are not absolute http:// or https:// URLs.
	ErrURL = errors.New("invalid service URL")

	// ErrServiceExists is returned when a URL is registered twice.
	ErrServiceExists = errors.New("service already registered")

	// ErrServiceNotFound is returned when no service matches an ID or URL.
	ErrServiceNotFound = errors.New("service not found")

	// ErrHostNotAllowed is returned when a URL's host matches no allow-list pattern.
	ErrHostNotAllowed = errors.New("service host not allowed")

	// ErrRefreshFailed is returned by Check when the last capabilities fetch failed.
	ErrRefreshFailed = errors.New("capabilities refresh failed")
)

const (
	// DefaultRefreshInterval is how often capabilities are refetched.
	DefaultRefreshInterval = 10 * time.Minute

	// DefaultRefreshTimeout bounds one capabilities refresh.
	DefaultRefreshTimeout = 30 * time.Second
)

// Refresher fetches and applies the capabilities of a service.
type Refresher interface {
	RefreshCapabilities(ctx context.Context, svc *service.Service) error
}

// Entry is a registered service and its refresh state.
type Entry struct {
	// ID is derived from the URL and stable across restarts.
	ID string

	// Service is the descriptor. It is shared and safe for concurrent use.
	Service *service.Service

	// RegisteredAt is when the service was added.
	RegisteredAt time.Time

	// LastRefresh is when capabilities were last fetched, successfully or not.
	LastRefresh time.Time

	// Healthy reports whether the last refresh succeeded.
	Healthy bool

	// RefreshError holds the last refresh failure.
	RefreshError string
}

// Registry is a thread-safe, URL-keyed collection of services in
// registration order.
type Registry struct {
	mu      sync.RWMutex
	entries *ordered.Map[string, *Entry]
	ids     map[string]string
	allowed []string
	logger  *zap.Logger

	refresher       Refresher
	refreshInterval time.Duration
	refreshTimeout  time.Duration
	stopRefresh     chan struct{}
	stopOnce        sync.Once
	refreshWg       sync.WaitGroup
}

// Config contains configuration for the registry.
type Config struct {
	// AllowedHosts are doublestar patterns matched against the URL host name.
	// Empty allows every host.
	AllowedHosts []string

	// Refresher refetches capabilities in the background loop.
	Refresher Refresher

	// RefreshInterval is how often to refresh capabilities.
	// Default: 10 minutes.
	RefreshInterval time.Duration

	// RefreshTimeout is the timeout for each refresh.
	// Default: 30 seconds.
	RefreshTimeout time.Duration
}

// NewRegistry creates a new service registry.
func NewRegistry(logger *zap.Logger, cfg *Config) (*Registry, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	for _, p := range cfg.AllowedHosts {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid allowed host pattern %q", p)
		}
	}
	interval := cfg.RefreshInterval
	if interval == 0 {
		interval = DefaultRefreshInterval
	}
	timeout := cfg.RefreshTimeout
	if timeout == 0 {
		timeout = DefaultRefreshTimeout
	}

	return &Registry{
		entries:         ordered.New[string, *Entry](),
		ids:             make(map[string]string),
		allowed:         append([]string(nil), cfg.AllowedHosts...),
		logger:          logger,
		refresher:       cfg.Refresher,
		refreshInterval: interval,
		refreshTimeout:  timeout,
		stopRefresh:     make(chan struct{}),
	}, nil
}

// ServiceID returns the registry ID of a service URL.
func ServiceID(serviceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(serviceURL)).String()
}

// ValidateURL checks that raw is an absolute http:// or https:// URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, fmt.Errorf("%w: %q must start with http:// or https://", ErrURL, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrURL, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrURL, raw)
	}
	return u, nil
}

// Add registers a service. The URL must be valid, allowed and not yet registered.
func (r *Registry) Add(rawURL string) (Entry, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := ValidateURL(rawURL)
	if err != nil {
		return Entry{}, err
	}
	if !r.hostAllowed(u.Hostname()) {
		return Entry{}, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries.Has(rawURL) {
		return Entry{}, fmt.Errorf("%w: %s", ErrServiceExists, rawURL)
	}

	e := &Entry{
		ID:           ServiceID(rawURL),
		Service:      service.New(rawURL),
		RegisteredAt: time.Now().UTC(),
	}
	r.entries.Set(rawURL, e)
	r.ids[e.ID] = rawURL

	r.logger.Info("service registered",
		zap.String("service_id", e.ID),
		zap.String("url", rawURL),
	)
	return *e, nil
}

// Remove unregisters a service by ID.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.ids[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	r.entries.Delete(u)
	delete(r.ids, id)

	r.logger.Info("service unregistered",
		zap.String("service_id", id),
		zap.String("url", u),
	)
	return nil
}

// Get returns the entry with the given ID.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.ids[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	e, _ := r.entries.Get(u)
	return *e, nil
}

// GetByURL returns the entry registered under a URL.
func (r *Registry) GetByURL(serviceURL string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries.Get(strings.TrimSpace(serviceURL))
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceURL)
	}
	return *e, nil
}

// List returns all entries in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, r.entries.Len())
	for _, e := range r.entries.All() {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Len()
}

// MarkRefreshed records the outcome of a capabilities fetch.
func (r *Registry) MarkRefreshed(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.ids[id]
	if !ok {
		return
	}
	e, _ := r.entries.Get(u)
	previouslyHealthy := e.Healthy
	e.LastRefresh = time.Now().UTC()
	e.Healthy = err == nil
	e.RefreshError = ""
	if err != nil {
		e.RefreshError = err.Error()
	}

	if previouslyHealthy != e.Healthy {
		if e.Healthy {
			r.logger.Info("service capabilities available", zap.String("service_id", id))
		} else {
			r.logger.Warn("service capabilities unavailable", zap.String("service_id", id), zap.Error(err))
		}
	}
}

// Check reports the state of a service from its last capabilities refresh.
// A service that was never refreshed is not reported as failing.
func (r *Registry) Check(id string) error {
	e, err := r.Get(id)
	if err != nil {
		return err
	}
	if e.LastRefresh.IsZero() || e.Healthy {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRefreshFailed, e.RefreshError)
}

func (r *Registry) hostAllowed(host string) bool {
	if len(r.allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, p := range r.allowed {
		if ok, _ := doublestar.Match(strings.ToLower(p), host); ok {
			return true
		}
	}
	return false
}

// StartRefresh starts the background capabilities refresh loop.
func (r *Registry) StartRefresh(ctx context.Context) {
	if r.refresher == nil {
		r.logger.Warn("capabilities refresh disabled, no refresher configured")
		return
	}
	r.refreshWg.Add(1)
	go r.refreshLoop(ctx)

	r.logger.Info("capabilities refresh started",
		zap.Duration("interval", r.refreshInterval),
		zap.Duration("timeout", r.refreshTimeout),
	)
}

// StopRefresh stops the refresh loop and waits for it to exit.
func (r *Registry) StopRefresh() {
	r.stopOnce.Do(func() { close(r.stopRefresh) })
	r.refreshWg.Wait()
}

func (r *Registry) refreshLoop(ctx context.Context) {
	defer r.refreshWg.Done()

	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopRefresh:
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll refetches the capabilities of every registered service.
func (r *Registry) RefreshAll(ctx context.Context) {
	if r.refresher == nil {
		return
	}
	for _, e := range r.List() {
		refreshCtx, cancel := context.WithTimeout(ctx, r.refreshTimeout)
		err := r.refresher.RefreshCapabilities(refreshCtx, e.Service)
		cancel()
		r.MarkRefreshed(e.ID, err)
	}
}
