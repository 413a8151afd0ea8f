package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piwi3910/wpsgate/internal/observability"
)

// APIBasePath is the prefix of every gateway API route.
const APIBasePath = "/wps/v1"

// setupRoutes configures all HTTP routes of the gateway.
// It organizes routes into logical groups:
//   - health and readiness endpoints
//   - Prometheus metrics endpoint
//   - API documentation
//   - gateway API v1 endpoints
func (s *Server) setupRoutes() {
	// Health check endpoints
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/ready", s.handleReadiness)
	s.router.GET("/readyz", s.handleReadiness)

	if s.metrics != nil {
		path := s.config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	s.setupDocsRoutes()

	v1 := s.router.Group(APIBasePath)
	v1.Use(VersioningMiddleware(NewVersionConfig()))
	{
		// Endpoint: /services
		services := v1.Group("/services")
		{
			services.GET("", s.services.ListServices)
			services.POST("", s.services.RegisterService)
			services.GET("/:serviceId", s.services.GetService)
			services.DELETE("/:serviceId", s.services.DeleteService)
			services.POST("/:serviceId/refresh", s.services.RefreshService)

			// Endpoint: /services/:serviceId/processes
			processes := services.Group("/:serviceId/processes")
			{
				processes.GET("", s.services.ListProcesses)
				processes.GET("/:processId", s.services.GetProcess)
				processes.POST("/:processId/execute-request", s.services.BuildExecuteRequest)
				processes.POST("/:processId/executions", s.executions.SubmitExecution)
			}
		}

		// Endpoint: /executions
		executions := v1.Group("/executions")
		{
			executions.GET("", s.executions.ListExecutions)
			executions.GET("/:executionId", s.executions.GetExecution)
			executions.DELETE("/:executionId", s.executions.CancelExecution)
		}
	}

	s.router.GET("/", s.handleRoot)
	s.router.NoRoute(s.handleNoRoute)
}

// handleHealth returns the health status of the server.
// This endpoint is used by load balancers and monitoring systems.
func (s *Server) handleHealth(c *gin.Context) {
	s.syncServiceHealthChecks()
	health := s.healthCheck.CheckHealth(c.Request.Context())

	statusCode := http.StatusOK
	if health.Status == observability.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// handleReadiness returns the readiness status of the server.
func (s *Server) handleReadiness(c *gin.Context) {
	readiness := s.healthCheck.CheckReadiness(c.Request.Context())

	statusCode := http.StatusOK
	if !readiness.Ready {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readiness)
}

// handleRoot returns basic API information.
func (s *Server) handleRoot(c *gin.Context) {
	endpoints := gin.H{
		"health":   "/health",
		"ready":    "/ready",
		"docs":     "/docs/",
		"api_base": APIBasePath,
	}
	if s.metrics != nil {
		endpoints["metrics"] = s.config.Observability.Metrics.Path
	}

	c.JSON(http.StatusOK, gin.H{
		"name":        "wpsgate",
		"version":     Version,
		"description": "REST gateway for OGC Web Processing Service 1.0.0 endpoints",
		"api_version": "v1",
		"services":    s.deps.Registry.Len(),
		"endpoints":   endpoints,
	})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "NotFound",
		"message": "No route for " + c.Request.Method + " " + c.Request.URL.Path,
		"code":    http.StatusNotFound,
	})
}
