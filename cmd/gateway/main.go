// Package main is the entry point for the wpsgate gateway.
// It exposes registered OGC WPS 1.0.0 services through a JSON REST API,
// tracks executions in Redis and notifies callbacks when they settle.
//
// The application performs the following initialization sequence:
//  1. Load configuration from config file and environment variables
//  2. Initialize structured logging with zap
//  3. Connect to Redis for execution storage and the notification stream
//  4. Create the WPS client and the service registry
//  5. Start the execution controller and the webhook worker
//  6. Configure the HTTP server with routes and middleware
//  7. Start the HTTP server with graceful shutdown support
//
// Graceful shutdown is triggered by SIGINT (Ctrl+C) or SIGTERM signals.
//
// Example usage:
//
//	# Start with default config
//	./gateway
//
//	# Start with custom config file
//	./gateway --config=/etc/wpsgate/config.yaml
//
//	# Start with environment variable overrides
//	export WPSGATE_SERVER_PORT=9090
//	export WPSGATE_REDIS_ADDRESSES=redis.example.com:6379
//	./gateway
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/config"
	"github.com/piwi3910/wpsgate/internal/controllers"
	"github.com/piwi3910/wpsgate/internal/observability"
	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/server"
	"github.com/piwi3910/wpsgate/internal/storage"
	"github.com/piwi3910/wpsgate/internal/transport"
	"github.com/piwi3910/wpsgate/internal/workers"
	"github.com/piwi3910/wpsgate/internal/wps/reproject"
	"github.com/piwi3910/wpsgate/internal/wps/service"
	"github.com/piwi3910/wpsgate/internal/wpsclient"
)

const (
	// ServiceName is the name of this service.
	ServiceName = "wpsgate"

	redisCheckTimeout = 5 * time.Second
)

var (
	// Command-line flags.
	configPath  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		if _, err := fmt.Fprintf(os.Stdout, "%s version %s\n", ServiceName, server.Version); err != nil {
			panic(err)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
// It returns an error if any critical initialization or runtime error occurs.
func run() error {
	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("wpsgate starting",
		zap.String("version", server.Version),
		zap.String("service", ServiceName),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close(logger)

	return runServerWithShutdown(ctx, cancel, cfg, logger, components)
}

// applicationComponents holds all initialized application components.
type applicationComponents struct {
	store      *storage.RedisStore
	registry   *registry.Registry
	controller *controllers.ExecutionController
	worker     *workers.WebhookWorker
	server     *server.Server
}

// Close stops background work and closes connections, in reverse start order.
func (c *applicationComponents) Close(logger *zap.Logger) {
	if c.worker != nil {
		if err := c.worker.Stop(); err != nil {
			logger.Warn("failed to stop webhook worker", zap.Error(err))
		}
	}
	if c.controller != nil {
		c.controller.Stop()
	}
	if c.registry != nil {
		c.registry.StopRefresh()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logger.Warn("failed to close Redis connection", zap.Error(err))
		}
	}
}

// initializeComponents wires storage, the WPS client, the registry, the
// execution controller, the webhook worker and the HTTP server.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*applicationComponents, error) {
	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.InitMetrics(cfg.Observability.Metrics.Namespace)
	}

	store, err := initializeRedisStorage(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize Redis storage", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize Redis storage: %w", err)
	}
	components := &applicationComponents{store: store}

	logger.Info("Redis storage initialized successfully",
		zap.String("mode", cfg.Redis.Mode),
		zap.Strings("addresses", cfg.Redis.Addresses),
	)

	client, err := initializeWPSClient(cfg, logger, metrics)
	if err != nil {
		components.Close(logger)
		return nil, fmt.Errorf("failed to initialize WPS client: %w", err)
	}

	reg, err := registry.NewRegistry(logger, &registry.Config{
		AllowedHosts:    cfg.WPS.AllowedHosts,
		Refresher:       client,
		RefreshInterval: cfg.WPS.RefreshInterval,
		RefreshTimeout:  cfg.WPS.RequestTimeout,
	})
	if err != nil {
		components.Close(logger)
		return nil, fmt.Errorf("failed to create service registry: %w", err)
	}
	components.registry = reg
	registerBootServices(ctx, cfg, logger, reg, client, metrics)
	reg.StartRefresh(ctx)

	controller, err := controllers.NewExecutionController(&controllers.Config{
		Executor:               client,
		Store:                  store,
		RedisClient:            store.Client(),
		Logger:                 logger,
		Metrics:                metrics,
		AllowInsecureCallbacks: cfg.Webhooks.AllowInsecure,
	})
	if err != nil {
		components.Close(logger)
		return nil, fmt.Errorf("failed to create execution controller: %w", err)
	}
	if err := controller.Start(ctx); err != nil {
		components.Close(logger)
		return nil, fmt.Errorf("failed to start execution controller: %w", err)
	}
	components.controller = controller

	if cfg.Webhooks.Enabled {
		worker, err := startWebhookWorker(ctx, cfg, logger, store, metrics)
		if err != nil {
			components.Close(logger)
			return nil, fmt.Errorf("failed to start webhook worker: %w", err)
		}
		components.worker = worker
	} else {
		logger.Warn("webhook delivery disabled, callbacks will queue without being sent")
	}

	components.server = server.New(cfg, logger, server.Dependencies{
		Registry:    reg,
		Client:      client,
		Controller:  controller,
		Store:       store,
		RedisClient: store.Client(),
		Metrics:     metrics,
	})
	logger.Info("HTTP server created",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.GinMode),
	)

	return components, nil
}

// initializeWPSClient creates the outbound transport and the WPS client.
func initializeWPSClient(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*wpsclient.Client, error) {
	tr, err := transport.NewHTTPClient(&transport.Config{
		Logger:            logger,
		Timeout:           cfg.WPS.RequestTimeout,
		RequestsPerSecond: cfg.WPS.RequestsPerSecond,
		Burst:             cfg.WPS.Burst,
		UserAgent:         cfg.WPS.UserAgent,
		MaxBodyBytes:      cfg.WPS.MaxResponseBytes,
	})
	if err != nil {
		return nil, err
	}

	return wpsclient.New(&wpsclient.Config{
		Transport:        tr,
		Logger:           logger,
		Metrics:          metrics,
		RequestEncoding:  service.Encoding(cfg.WPS.RequestEncoding),
		Reprojector:      reproject.New(),
		PollInterval:     cfg.WPS.PollInterval,
		MaxStatusQueries: cfg.WPS.MaxStatusQueries,
	})
}

// registerBootServices registers the configured services and fetches their
// capabilities. Failures are logged; an unreachable service stays registered
// and is retried by the refresh loop.
func registerBootServices(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	reg *registry.Registry,
	refresher registry.Refresher,
	metrics *observability.Metrics,
) {
	for _, u := range cfg.WPS.Services {
		entry, err := reg.Add(u)
		if err != nil {
			logger.Warn("skipping configured service", zap.String("url", u), zap.Error(err))
			continue
		}

		refreshCtx, cancel := context.WithTimeout(ctx, cfg.WPS.RequestTimeout)
		err = refresher.RefreshCapabilities(refreshCtx, entry.Service)
		cancel()
		reg.MarkRefreshed(entry.ID, err)
		if err != nil {
			logger.Warn("initial capabilities fetch failed",
				zap.String("service_id", entry.ID),
				zap.String("url", u),
				zap.Error(err),
			)
		}
	}
	if metrics != nil {
		metrics.SetServiceCount(reg.Len())
	}
	logger.Info("configured services registered",
		zap.Int("configured", len(cfg.WPS.Services)),
		zap.Int("registered", reg.Len()),
	)
}

// startWebhookWorker creates the consumer group and starts delivery in the background.
func startWebhookWorker(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	store *storage.RedisStore,
	metrics *observability.Metrics,
) (*workers.WebhookWorker, error) {
	worker, err := workers.NewWebhookWorker(&workers.Config{
		RedisClient:  store.Client(),
		Logger:       logger,
		Metrics:      metrics,
		WorkerCount:  cfg.Webhooks.WorkerCount,
		Timeout:      cfg.Webhooks.Timeout,
		MaxRetries:   cfg.Webhooks.MaxRetries,
		RetryBackoff: cfg.Webhooks.RetryBackoff,
		MaxBackoff:   cfg.Webhooks.MaxBackoff,
		HMACSecret:   cfg.Webhooks.HMACSecret,
	})
	if err != nil {
		return nil, err
	}
	if err := worker.CreateConsumerGroup(ctx); err != nil {
		return nil, err
	}

	go func() {
		if err := worker.Start(ctx); err != nil {
			logger.Error("webhook worker stopped", zap.Error(err))
		}
	}()

	if cfg.Webhooks.HMACSecret == "" {
		logger.Warn("webhook HMAC secret not set, notifications are sent unsigned")
	}
	return worker, nil
}

// runServerWithShutdown starts the server and handles graceful shutdown.
func runServerWithShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
	components *applicationComponents,
) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server",
			zap.String("address", components.server.Addr()),
			zap.Bool("tls_enabled", cfg.TLS.Enabled),
		)
		if err := components.server.Start(); err != nil {
			serverErrors <- err
		}
	}()

	return handleShutdown(ctx, cancel, components.server, cfg, logger, shutdown, serverErrors)
}

// handleShutdown waits for shutdown signals or errors and performs graceful shutdown.
func handleShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	srv *server.Server,
	cfg *config.Config,
	logger *zap.Logger,
	shutdown chan os.Signal,
	serverErrors chan error,
) error {
	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		err := gracefulShutdown(context.WithoutCancel(ctx), srv, cfg, logger)
		cancel()
		return err
	}
}

// loadConfiguration loads and validates the application configuration.
func loadConfiguration(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initializeLogger creates a structured logger based on configuration.
func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	logging := cfg.Observability.Logging

	var loggerCfg zap.Config
	if logging.Development {
		loggerCfg = zap.NewDevelopmentConfig()
	} else {
		loggerCfg = zap.NewProductionConfig()
		loggerCfg.DisableCaller = !logging.EnableCaller
		loggerCfg.DisableStacktrace = !logging.EnableStacktrace
		if logging.Format == "console" {
			loggerCfg.Encoding = "console"
		} else {
			loggerCfg.Encoding = "json"
		}
	}
	loggerCfg.Level = parseLogLevel(logging.Level)
	if len(logging.OutputPaths) > 0 {
		loggerCfg.OutputPaths = logging.OutputPaths
	}
	if len(logging.ErrorOutputPaths) > 0 {
		loggerCfg.ErrorOutputPaths = logging.ErrorOutputPaths
	}

	logger, err := loggerCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// parseLogLevel converts a log level string to zapcore.Level.
func parseLogLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	case "fatal":
		return zap.NewAtomicLevelAt(zap.FatalLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

// initializeRedisStorage creates Redis storage and verifies connectivity.
func initializeRedisStorage(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*storage.RedisStore, error) {
	redisCfg := buildRedisConfig(cfg, metrics)
	if err := configureRedisMode(redisCfg, cfg, logger); err != nil {
		return nil, err
	}

	logSecurityWarnings(cfg, logger)

	store := storage.NewRedisStore(redisCfg)
	if err := verifyRedisConnectivity(store); err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info("Redis connectivity verified")
	return store, nil
}

// buildRedisConfig creates storage.RedisConfig from config.Config.
func buildRedisConfig(cfg *config.Config, metrics *observability.Metrics) *storage.RedisConfig {
	return &storage.RedisConfig{
		DB:                     cfg.Redis.DB,
		Password:               cfg.Redis.Password,
		MaxRetries:             cfg.Redis.MaxRetries,
		DialTimeout:            cfg.Redis.DialTimeout,
		ReadTimeout:            cfg.Redis.ReadTimeout,
		WriteTimeout:           cfg.Redis.WriteTimeout,
		PoolSize:               cfg.Redis.PoolSize,
		ExecutionTTL:           cfg.WPS.ExecutionTTL,
		AllowInsecureCallbacks: cfg.Webhooks.AllowInsecure,
		Metrics:                metrics,
	}
}

// configureRedisMode sets up Redis mode (standalone/sentinel).
func configureRedisMode(redisCfg *storage.RedisConfig, cfg *config.Config, logger *zap.Logger) error {
	switch cfg.Redis.Mode {
	case "sentinel":
		redisCfg.UseSentinel = true
		redisCfg.SentinelAddrs = cfg.Redis.Addresses
		redisCfg.MasterName = cfg.Redis.MasterName
		logger.Info("configuring Redis in Sentinel mode",
			zap.Strings("sentinel_addresses", cfg.Redis.Addresses),
			zap.String("master_name", cfg.Redis.MasterName),
		)

	case "standalone", "":
		redisCfg.UseSentinel = false
		if len(cfg.Redis.Addresses) > 0 {
			redisCfg.Addr = cfg.Redis.Addresses[0]
		} else {
			redisCfg.Addr = "localhost:6379"
		}
		logger.Info("configuring Redis in standalone mode",
			zap.String("address", redisCfg.Addr),
		)

	default:
		return fmt.Errorf("unsupported Redis mode: %s", cfg.Redis.Mode)
	}

	return nil
}

// logSecurityWarnings logs security-related configuration warnings.
func logSecurityWarnings(cfg *config.Config, logger *zap.Logger) {
	if cfg.Webhooks.AllowInsecure {
		logger.Warn("SECURITY WARNING: HTTP (non-HTTPS) webhook callbacks are allowed. "+
			"This should ONLY be used in development/testing environments.",
			zap.Bool("allow_insecure_callbacks", true))
	}
	if cfg.Redis.Password != "" {
		logger.Warn("Redis password is read from plaintext configuration; prefer WPSGATE_REDIS_PASSWORD",
			zap.Bool("plaintext_password", true))
	}
	if len(cfg.WPS.AllowedHosts) == 0 {
		logger.Warn("no WPS host allow-list configured, any host may be registered")
	}
}

// verifyRedisConnectivity tests Redis connection.
func verifyRedisConnectivity(store *storage.RedisStore) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisCheckTimeout)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("redis connectivity check failed: %w", err)
	}

	return nil
}

// gracefulShutdown stops the HTTP server within the configured timeout.
func gracefulShutdown(ctx context.Context, srv *server.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("initiating graceful shutdown",
		zap.Duration("timeout", cfg.Server.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownComplete := make(chan error, 1)
	go func() {
		if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
			shutdownComplete <- fmt.Errorf("server shutdown failed: %w", err)
			return
		}
		shutdownComplete <- nil
	}()

	select {
	case err := <-shutdownComplete:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("graceful shutdown completed successfully")
		return nil

	case <-shutdownCtx.Done():
		logger.Warn("graceful shutdown timed out, forcing shutdown")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
