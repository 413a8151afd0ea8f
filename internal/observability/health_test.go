package observability_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/piwi3910/wpsgate/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHealthChecker(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")
	require.NotNil(t, hc)
	assert.Equal(t, "v1.0.0", hc.Version)
	assert.Equal(t, 5*time.Second, hc.Timeout)
	assert.NotNil(t, hc.HealthChecks)
	assert.NotNil(t, hc.ReadinessChecks)
}

func TestRegisterHealthCheck(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")

	checkFunc := func(_ context.Context) error {
		return nil
	}

	hc.RegisterHealthCheck("test-component", checkFunc)

	// Verify check was registered
	assert.Len(t, hc.HealthChecks, 1)
	assert.Contains(t, hc.HealthChecks, "test-component")
}

func TestRegisterReadinessCheck(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")

	checkFunc := func(_ context.Context) error {
		return nil
	}

	hc.RegisterReadinessCheck("test-component", checkFunc)

	// Verify check was registered
	assert.Len(t, hc.ReadinessChecks, 1)
	assert.Contains(t, hc.ReadinessChecks, "test-component")
}

func TestCheckHealthAllHealthy(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")

	// Register healthy checks
	hc.RegisterHealthCheck("component1", func(_ context.Context) error {
		return nil
	})
	hc.RegisterHealthCheck("component2", func(_ context.Context) error {
		return nil
	})

	ctx := context.Background()
	response := hc.CheckHealth(ctx)

	require.NotNil(t, response)
	assert.Equal(t, observability.StatusHealthy, response.Status)
	assert.Equal(t, "v1.0.0", response.Version)
	assert.Len(t, response.Components, 2)

	for _, comp := range response.Components {
		assert.Equal(t, observability.StatusHealthy, comp.Status)
		assert.Empty(t, comp.Error)
	}
}

func TestCheckHealthWithUnhealthyComponent(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")

	// Register healthy and unhealthy checks
	hc.RegisterHealthCheck("healthy-component", func(_ context.Context) error {
		return nil
	})
	hc.RegisterHealthCheck("unhealthy-component", func(_ context.Context) error {
		return errors.New("component is down")
	})

	ctx := context.Background()
	response := hc.CheckHealth(ctx)

	require.NotNil(t, response)
	assert.Equal(t, observability.StatusUnhealthy, response.Status)

	healthyComp := response.Components["healthy-component"]
	assert.Equal(t, observability.StatusHealthy, healthyComp.Status)

	unhealthyComp := response.Components["unhealthy-component"]
	assert.Equal(t, observability.StatusUnhealthy, unhealthyComp.Status)
	assert.Contains(t, unhealthyComp.Error, "component is down")
}

func TestCheckHealthTimeout(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")
	hc.Timeout = 100 * time.Millisecond

	// Register a check that takes too long
	hc.RegisterHealthCheck("slow-component", func(ctx context.Context) error {
		select {
		case <-time.After(1 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	ctx := context.Background()
	response := hc.CheckHealth(ctx)

	require.NotNil(t, response)
	assert.Equal(t, observability.StatusUnhealthy, response.Status)

	slowComp := response.Components["slow-component"]
	assert.Equal(t, observability.StatusUnhealthy, slowComp.Status)
	assert.Equal(t, "check timed out", slowComp.Error)
}

func TestCheckReadinessAllReady(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")

	// Register ready checks
	hc.RegisterReadinessCheck("redis", func(_ context.Context) error {
		return nil
	})
	hc.RegisterReadinessCheck("registry", func(_ context.Context) error {
		return nil
	})

	ctx := context.Background()
	response := hc.CheckReadiness(ctx)

	require.NotNil(t, response)
	assert.True(t, response.Ready)
	assert.Len(t, response.Components, 2)

	for _, comp := range response.Components {
		assert.Equal(t, observability.StatusHealthy, comp.Status)
	}
}

func TestCheckReadinessWithNotReadyComponent(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")

	hc.RegisterReadinessCheck("redis", func(_ context.Context) error {
		return nil
	})
	hc.RegisterReadinessCheck("registry", func(_ context.Context) error {
		return errors.New("k8s not reachable")
	})

	ctx := context.Background()
	response := hc.CheckReadiness(ctx)

	require.NotNil(t, response)
	assert.False(t, response.Ready)

	registryComp := response.Components["registry"]
	assert.Equal(t, observability.StatusUnhealthy, registryComp.Status)
	assert.Contains(t, registryComp.Error, "k8s not reachable")
}

func TestCheckHealthDegradedComponent(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")

	hc.RegisterHealthCheck("storage", func(_ context.Context) error {
		return nil
	})
	hc.RegisterHealthCheck("service:a", observability.ServiceHealthCheck("a", func(_ context.Context) error {
		return errors.New("connection refused")
	}))

	response := hc.CheckHealth(context.Background())

	assert.Equal(t, observability.StatusDegraded, response.Status)
	assert.Equal(t, observability.StatusHealthy, response.Components["storage"].Status)

	comp := response.Components["service:a"]
	assert.Equal(t, observability.StatusDegraded, comp.Status)
	assert.Contains(t, comp.Error, "connection refused")
}

func TestCheckReadinessNotReadyWhenDegraded(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")
	hc.RegisterReadinessCheck("storage", func(_ context.Context) error {
		return fmt.Errorf("%w: slow", observability.ErrDegraded)
	})

	response := hc.CheckReadiness(context.Background())

	assert.False(t, response.Ready)
	assert.Equal(t, observability.StatusDegraded, response.Components["storage"].Status)
}

func TestReplaceHealthChecks(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")
	ok := func(_ context.Context) error { return nil }

	hc.RegisterHealthCheck("storage", ok)
	hc.ReplaceHealthChecks("service:", map[string]observability.HealthCheck{
		"a": ok,
		"b": ok,
	})
	assert.Len(t, hc.HealthChecks, 3)
	assert.Contains(t, hc.HealthChecks, "service:a")
	assert.Contains(t, hc.HealthChecks, "service:b")

	hc.ReplaceHealthChecks("service:", map[string]observability.HealthCheck{
		"b": ok,
	})
	assert.Len(t, hc.HealthChecks, 2)
	assert.NotContains(t, hc.HealthChecks, "service:a")
	assert.Contains(t, hc.HealthChecks, "storage", "checks outside the prefix are kept")

	hc.ReplaceHealthChecks("service:", nil)
	assert.Len(t, hc.HealthChecks, 1)
}

func TestExecuteChecksEmpty(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")
	ctx := context.Background()

	checks := make(map[string]observability.HealthCheck)
	components := hc.ExecuteChecks(ctx, checks)

	assert.NotNil(t, components)
	assert.Len(t, components, 0)
}

func TestExecuteChecksConcurrent(t *testing.T) {
	hc := observability.NewHealthChecker("v1.0.0")
	ctx := context.Background()

	checks := map[string]observability.HealthCheck{
		"check1": func(_ context.Context) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		},
		"check2": func(_ context.Context) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		},
		"check3": func(_ context.Context) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		},
	}

	start := time.Now()
	components := hc.ExecuteChecks(ctx, checks)
	duration := time.Since(start)

	// Should complete in parallel (~50ms), not sequential (~150ms)
	assert.Less(t, duration, 100*time.Millisecond)
	assert.Len(t, components, 3)

	for _, comp := range components {
		assert.Equal(t, observability.StatusHealthy, comp.Status)
	}
}

func TestRedisHealthCheck(t *testing.T) {
	// Success case
	pingFunc := func(_ context.Context) error {
		return nil
	}
	check := observability.RedisHealthCheck(pingFunc)
	err := check(context.Background())
	assert.NoError(t, err)

	// Error case
	pingFuncErr := func(_ context.Context) error {
		return errors.New("redis connection failed")
	}
	checkErr := observability.RedisHealthCheck(pingFuncErr)
	err = checkErr(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")

	// Nil function case
	checkNil := observability.RedisHealthCheck(nil)
	err = checkNil(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping function not provided")
}

func TestServiceHealthCheck(t *testing.T) {
	check := observability.ServiceHealthCheck("svc-1", func(_ context.Context) error {
		return nil
	})
	assert.NoError(t, check(context.Background()))

	checkErr := observability.ServiceHealthCheck("svc-2", func(_ context.Context) error {
		return errors.New("capabilities unavailable")
	})
	err := checkErr(context.Background())
	assert.ErrorIs(t, err, observability.ErrDegraded)
	assert.ErrorContains(t, err, "capabilities unavailable")

	checkNil := observability.ServiceHealthCheck("svc-3", nil)
	err = checkNil(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "service svc-3 check function not provided")
}

func TestHealthStatusConstants(t *testing.T) {
	assert.Equal(t, observability.HealthStatus("healthy"), observability.StatusHealthy)
	assert.Equal(t, observability.HealthStatus("unhealthy"), observability.StatusUnhealthy)
	assert.Equal(t, observability.HealthStatus("degraded"), observability.StatusDegraded)
}

func TestComponentHealthStructure(t *testing.T) {
	comp := observability.ComponentHealth{
		Status:  observability.StatusHealthy,
		Message: "Component is healthy",
		Latency: "10ms",
	}

	assert.Equal(t, observability.StatusHealthy, comp.Status)
	assert.Equal(t, "Component is healthy", comp.Message)
	assert.Equal(t, "10ms", comp.Latency)
	assert.Empty(t, comp.Error)
}

func TestHealthResponseStructure(t *testing.T) {
	now := time.Now()
	response := observability.HealthResponse{
		Status:     observability.StatusHealthy,
		Timestamp:  now,
		Version:    "v1.0.0",
		Components: make(map[string]observability.ComponentHealth),
	}

	response.Components["test"] = observability.ComponentHealth{
		Status: observability.StatusHealthy,
	}

	assert.Equal(t, observability.StatusHealthy, response.Status)
	assert.Equal(t, now, response.Timestamp)
	assert.Equal(t, "v1.0.0", response.Version)
	assert.Len(t, response.Components, 1)
}

func TestReadinessResponseStructure(t *testing.T) {
	now := time.Now()
	response := observability.ReadinessResponse{
		Ready:      true,
		Timestamp:  now,
		Components: make(map[string]observability.ComponentHealth),
	}

	response.Components["test"] = observability.ComponentHealth{
		Status: observability.StatusHealthy,
	}

	assert.True(t, response.Ready)
	assert.Equal(t, now, response.Timestamp)
	assert.Len(t, response.Components, 1)
}

// Benchmark tests for performance validation.
func BenchmarkHealthCheckExecution(b *testing.B) {
	hc := observability.NewHealthChecker("v1.0.0")
	hc.RegisterHealthCheck("test", func(_ context.Context) error {
		return nil
	})

	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = hc.CheckHealth(ctx)
	}
}

func BenchmarkReadinessCheckExecution(b *testing.B) {
	hc := observability.NewHealthChecker("v1.0.0")
	hc.RegisterReadinessCheck("test", func(_ context.Context) error {
		return nil
	})

	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = hc.CheckReadiness(ctx)
	}
}
