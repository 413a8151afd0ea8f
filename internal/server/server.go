// Package server provides the HTTP server of the WPS gateway.
// It includes Gin-based routing, middleware setup, and graceful shutdown handling.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/config"
	"github.com/piwi3910/wpsgate/internal/handlers"
	"github.com/piwi3910/wpsgate/internal/middleware"
	"github.com/piwi3910/wpsgate/internal/observability"
	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/storage"
)

// Version is reported by the health endpoint and the API root.
const Version = "1.0.0"

// wpsgateOpenAPISpec embeds the gateway OpenAPI document.
//
//go:embed openapi/wpsgate.yaml
var wpsgateOpenAPISpec []byte

// OpenAPISpec returns the embedded gateway OpenAPI document.
func OpenAPISpec() []byte {
	return wpsgateOpenAPISpec
}

// Dependencies are the components the server routes requests to.
type Dependencies struct {
	// Registry holds the registered WPS services. Required.
	Registry *registry.Registry

	// Client talks to the WPS services. Required.
	Client handlers.WPSClient

	// Controller owns live executions. Required.
	Controller handlers.ExecutionController

	// Store holds execution records. Required.
	Store storage.Store

	// RedisClient backs the distributed rate limiter. Rate limiting is
	// skipped without it.
	RedisClient redis.UniversalClient

	// Metrics records HTTP metrics when metrics are enabled.
	Metrics *observability.Metrics
}

// Server represents the HTTP server of the WPS gateway.
//
// The server provides:
//   - gateway API endpoints (/wps/v1/*)
//   - health check endpoints (/health, /ready)
//   - Prometheus metrics endpoint (/metrics)
//   - the OpenAPI document and Swagger UI (/docs)
//   - request logging and recovery middleware
//   - graceful shutdown support
//
// Example:
//
//	srv := server.New(cfg, logger, server.Dependencies{
//	    Registry:   reg,
//	    Client:     client,
//	    Controller: ctrl,
//	    Store:      store,
//	})
//	go srv.Start()
//	defer srv.Shutdown()
type Server struct {
	config           *config.Config
	logger           *zap.Logger
	router           *gin.Engine
	httpServer       *http.Server
	metrics          *observability.Metrics
	deps             Dependencies
	healthCheck      *observability.HealthChecker
	openAPIValidator *middleware.OpenAPIValidator
	openAPISpec      []byte
	rateLimiter      *middleware.RateLimiter

	services   *handlers.ServiceHandler
	executions *handlers.ExecutionHandler

	shutdownOnce sync.Once
}

// New creates a new Server with the given configuration, logger and dependencies.
// It initializes the Gin router, sets up middleware, and configures routes.
//
// The function will panic if essential dependencies are missing.
func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if deps.Registry == nil {
		panic("registry cannot be nil")
	}
	if deps.Client == nil {
		panic("wps client cannot be nil")
	}
	if deps.Controller == nil {
		panic("execution controller cannot be nil")
	}
	if deps.Store == nil {
		panic("store cannot be nil")
	}

	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	srv := &Server{
		config:      cfg,
		logger:      logger,
		router:      gin.New(),
		deps:        deps,
		healthCheck: initHealthChecker(deps.Store),
		openAPISpec: wpsgateOpenAPISpec,
		services:    handlers.NewServiceHandler(deps.Registry, deps.Client, logger),
		executions:  handlers.NewExecutionHandler(deps.Registry, deps.Controller, deps.Store, logger),
	}

	if cfg.Observability.Metrics.Enabled {
		srv.metrics = deps.Metrics
		if srv.metrics == nil {
			srv.metrics = observability.InitMetrics(cfg.Observability.Metrics.Namespace)
		}
	}

	validator, err := initOpenAPIValidator(cfg, logger)
	if err != nil {
		logger.Warn("failed to initialize OpenAPI validator, validation disabled",
			zap.Error(err),
		)
	}
	srv.openAPIValidator = validator

	if cfg.Security.RateLimitEnabled {
		srv.rateLimiter = initRateLimiter(cfg, deps.RedisClient, logger)
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	srv.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        srv.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return srv
}

// initHealthChecker registers the storage checks. Service checks are
// refreshed from the registry on every health request.
func initHealthChecker(store storage.Store) *observability.HealthChecker {
	checker := observability.NewHealthChecker(Version)
	checker.RegisterHealthCheck("storage", observability.RedisHealthCheck(store.Ping))
	checker.RegisterReadinessCheck("storage", observability.RedisHealthCheck(store.Ping))
	return checker
}

// serviceCheckPrefix names the health checks of registered WPS services.
const serviceCheckPrefix = "service:"

// syncServiceHealthChecks registers one check per registered service and
// drops the checks of services that were removed.
func (s *Server) syncServiceHealthChecks() {
	reg := s.deps.Registry
	checks := make(map[string]observability.HealthCheck)
	for _, e := range reg.List() {
		id := e.ID
		checks[id] = observability.ServiceHealthCheck(id, func(context.Context) error {
			return reg.Check(id)
		})
	}
	s.healthCheck.ReplaceHealthChecks(serviceCheckPrefix, checks)
}

// initOpenAPIValidator initializes the OpenAPI validator with the embedded document.
func initOpenAPIValidator(cfg *config.Config, logger *zap.Logger) (*middleware.OpenAPIValidator, error) {
	if !cfg.Validation.Enabled {
		return nil, nil
	}

	validationCfg := middleware.DefaultValidationConfig()
	validationCfg.Logger = logger
	validationCfg.ValidateRequest = cfg.Validation.Enabled
	validationCfg.ValidateResponse = cfg.Validation.ValidateResponse
	if cfg.Security.MaxBodyBytes > 0 {
		validationCfg.MaxBodySize = cfg.Security.MaxBodyBytes
	}

	validator, err := middleware.NewOpenAPIValidator(validationCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAPI validator: %w", err)
	}

	if cfg.Validation.SpecPath != "" {
		if err := validator.LoadSpecFromFile(cfg.Validation.SpecPath); err != nil {
			return nil, fmt.Errorf("failed to load OpenAPI spec from file: %w", err)
		}
		return validator, nil
	}

	if err := validator.LoadSpec(wpsgateOpenAPISpec); err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	return validator, nil
}

// initRateLimiter builds the Redis token-bucket limiter. Without a reachable
// Redis the gateway runs unlimited.
func initRateLimiter(cfg *config.Config, client redis.UniversalClient, logger *zap.Logger) *middleware.RateLimiter {
	if client == nil {
		logger.Warn("rate limiting enabled without a redis client, requests are not limited")
		return nil
	}

	limiter, err := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		Enabled: true,
		PerClient: middleware.ClientLimitConfig{
			Requests: cfg.Security.RateLimitRequests,
			Window:   cfg.Security.RateLimitWindow,
		},
		RedisClient: client,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize rate limiter, requests are not limited", zap.Error(err))
		return nil
	}
	return limiter
}

// setupMiddleware configures middleware for the Gin router.
// Middleware is executed in the order they are added.
func (s *Server) setupMiddleware() {
	// Recovery middleware - must be first to catch panics
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware())
	}

	if s.config.Security.SecurityHeaders {
		headers := middleware.DefaultSecurityHeadersConfig()
		headers.TLSEnabled = s.config.TLS.Enabled
		s.router.Use(middleware.SecurityHeaders(headers))
	}

	if s.config.Security.EnableCORS {
		s.router.Use(s.corsMiddleware())
	}

	if s.config.Security.MaxBodyBytes > 0 {
		s.router.Use(middleware.MaxBodyBytes(s.config.Security.MaxBodyBytes))
	}

	if s.rateLimiter != nil {
		s.router.Use(s.rateLimiter.Middleware())
		s.logger.Info("rate limiting enabled",
			zap.Int("requests", s.config.Security.RateLimitRequests),
			zap.Duration("window", s.config.Security.RateLimitWindow),
		)
	}

	if s.openAPIValidator != nil {
		s.router.Use(s.openAPIValidator.Middleware())
		s.logger.Info("OpenAPI request validation enabled")
	}
}

// Start starts the HTTP server and blocks until it is shut down.
// It returns nil after a graceful shutdown, also when Shutdown ran first.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.String("mode", gin.Mode()),
		zap.Bool("tls_enabled", s.config.TLS.Enabled),
	)

	var err error
	if s.config.TLS.Enabled {
		err = s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server within the configured
// shutdown timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.ShutdownWithContext(ctx)
}

// ShutdownWithContext waits for active requests to complete or until ctx
// expires. Only the first call has an effect.
func (s *Server) ShutdownWithContext(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during shutdown", zap.Error(err))
			shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
			return
		}
		s.logger.Info("server shutdown complete")
	})

	return shutdownErr
}

// Router returns the underlying Gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// HealthChecker returns the health checker so callers can register more checks.
func (s *Server) HealthChecker() *observability.HealthChecker {
	return s.healthCheck
}

// recoveryMiddleware recovers from panics and logs the error.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   handlers.ErrKindInternal,
					"message": "Internal server error",
					"code":    http.StatusInternalServerError,
				})
			}
		}()
		c.Next()
	}
}

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied request IDs.
const maxRequestIDLength = 128

// requestIDMiddleware keeps a client-supplied request ID or assigns one, and
// stores it with a request-scoped logger in the request context.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := observability.ContextWithRequestID(c.Request.Context(), id)
		reqLogger := observability.NewLogger(s.logger).WithContext(ctx)
		c.Request = c.Request.WithContext(observability.ContextWithLogger(ctx, reqLogger))
		c.Next()
	}
}

// loggingMiddleware logs HTTP requests and responses.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger := observability.LoggerFromContext(c.Request.Context(), s.logger)

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("body_size", c.Writer.Size()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		// probes are frequent
		if path == "/health" || path == "/ready" {
			logger.Debug("HTTP request", fields...)
		} else {
			logger.Info("HTTP request", fields...)
		}

		for _, e := range c.Errors {
			logger.Error("request error", zap.Error(e.Err))
		}
	}
}

// metricsMiddleware collects Prometheus metrics for HTTP requests.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// route patterns keep label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		s.metrics.HTTPInFlightInc()
		defer s.metrics.HTTPInFlightDec()

		c.Next()

		s.metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.Writer.Size())
	}
}

// corsMiddleware adds CORS headers to responses.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := len(s.config.Security.AllowedOrigins) == 0
		for _, allowedOrigin := range s.config.Security.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers",
				strings.Join(s.config.Security.AllowedHeaders, ", "))
			c.Writer.Header().Set("Access-Control-Allow-Methods",
				strings.Join(s.config.Security.AllowedMethods, ", "))
			c.Writer.Header().Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
