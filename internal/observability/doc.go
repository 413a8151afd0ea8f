// Package observability provides the logging, metrics and health tools of the WPS gateway.
//
// # Logging
//
// Components wrap the zap logger they are given and tag it:
//
//	logger := observability.NewLogger(zapLogger).WithComponent("wpsclient")
//	logger.LogWPSOperation("DescribeProcess", svc.URL(), "buffer", time.Since(start), err)
//
// The server stores a request-scoped logger carrying the request ID in the
// request context. Handlers retrieve it, falling back to their own logger:
//
//	logger := observability.LoggerFromContext(c.Request.Context(), h.Logger)
//	logger.Info("service registered")
//
// # Metrics
//
// Initialize metrics once at application startup:
//
//	metrics := observability.InitMetrics("wpsgate")
//
// Record WPS operations:
//
//	start := time.Now()
//	err := client.RefreshCapabilities(ctx, svc)
//	metrics.RecordWPSOperation("GetCapabilities", time.Since(start), err)
//
// Track registered services:
//
//	metrics.SetServiceCount(reg.Len())
//
// # Health Checks
//
// Create a health checker with registered checks:
//
//	checker := observability.NewHealthChecker("v1.0.0")
//	checker.RegisterReadinessCheck("storage", observability.RedisHealthCheck(store.Ping))
//
// Checks of components that come and go, such as registered WPS services,
// are swapped as a group. A failing service check degrades the gateway
// without making it unhealthy:
//
//	checker.ReplaceHealthChecks("service:", map[string]observability.HealthCheck{
//	    id: observability.ServiceHealthCheck(id, func(context.Context) error { return reg.Check(id) }),
//	})
package observability
