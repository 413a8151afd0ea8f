package observability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component is degraded but functional.
	StatusDegraded HealthStatus = "degraded"
)

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) error

// ErrDegraded marks a check failure that leaves the gateway functional.
// Such a component is reported as degraded instead of unhealthy.
var ErrDegraded = errors.New("degraded")

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker manages health and readiness checks.
type HealthChecker struct {
	mu              sync.RWMutex
	HealthChecks    map[string]HealthCheck // Exported for testing
	ReadinessChecks map[string]HealthCheck // Exported for testing
	Version         string                 // Exported for testing
	Timeout         time.Duration          // Exported for testing
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		HealthChecks:    make(map[string]HealthCheck),
		ReadinessChecks: make(map[string]HealthCheck),
		Version:         version,
		Timeout:         5 * time.Second, // Default timeout
	}
}

// RegisterHealthCheck registers a health check for a component.
func (hc *HealthChecker) RegisterHealthCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.HealthChecks[name] = check
}

// RegisterReadinessCheck registers a readiness check for a component.
func (hc *HealthChecker) RegisterReadinessCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ReadinessChecks[name] = check
}

// ReplaceHealthChecks swaps every health check whose name starts with prefix
// for checks. It is used for components that come and go at runtime.
func (hc *HealthChecker) ReplaceHealthChecks(prefix string, checks map[string]HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for name := range hc.HealthChecks {
		if strings.HasPrefix(name, prefix) {
			delete(hc.HealthChecks, name)
		}
	}
	for name, check := range checks {
		hc.HealthChecks[prefix+name] = check
	}
}

// CheckHealth performs all health checks and returns the health status.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *HealthResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.HealthChecks))
	for name, check := range hc.HealthChecks {
		checks[name] = check
	}
	timeout := hc.Timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := hc.ExecuteChecks(ctx, checks)

	// Determine overall status
	overallStatus := StatusHealthy
	for _, component := range components {
		if component.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
		if component.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return &HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    hc.Version,
		Components: components,
	}
}

// CheckReadiness performs all readiness checks and returns the readiness status.
func (hc *HealthChecker) CheckReadiness(ctx context.Context) *ReadinessResponse {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.ReadinessChecks))
	for name, check := range hc.ReadinessChecks {
		checks[name] = check
	}
	timeout := hc.Timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := hc.ExecuteChecks(ctx, checks)

	// Determine overall readiness - all components must be healthy
	ready := true
	for _, component := range components {
		if component.Status != StatusHealthy {
			ready = false
			break
		}
	}

	return &ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}
}

// ExecuteChecks executes checks concurrently. Exported for testing.
func (hc *HealthChecker) ExecuteChecks(ctx context.Context, checks map[string]HealthCheck) map[string]ComponentHealth {
	components := make(map[string]ComponentHealth)
	if len(checks) == 0 {
		return components
	}

	var wg sync.WaitGroup
	resultChan := make(chan struct {
		name   string
		health ComponentHealth
	}, len(checks))

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)
			latency := time.Since(start)

			health := ComponentHealth{
				Status:  StatusHealthy,
				Latency: latency.String(),
			}

			switch {
			case err == nil:
			case ctx.Err() != nil:
				health.Status = StatusUnhealthy
				health.Error = "check timed out"
			case errors.Is(err, ErrDegraded):
				health.Status = StatusDegraded
				health.Error = err.Error()
			default:
				health.Status = StatusUnhealthy
				health.Error = err.Error()
			}

			resultChan <- struct {
				name   string
				health ComponentHealth
			}{name: name, health: health}
		}(name, check)
	}

	// Close channel when all checks complete
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results
	for result := range resultChan {
		components[result.name] = result.health
	}

	return components
}

// RedisHealthCheck creates a health check for Redis.
func RedisHealthCheck(pingFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if pingFunc == nil {
			return fmt.Errorf("redis ping function not provided")
		}
		return pingFunc(ctx)
	}
}

// ServiceHealthCheck creates a health check for a registered WPS service.
// A failing remote service degrades the gateway without making it unhealthy.
func ServiceHealthCheck(serviceID string, checkFunc func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if checkFunc == nil {
			return fmt.Errorf("%w: service %s check function not provided", ErrDegraded, serviceID)
		}
		if err := checkFunc(ctx); err != nil {
			return fmt.Errorf("%w: service %s: %v", ErrDegraded, serviceID, err)
		}
		return nil
	}
}
