package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/wpsgate/internal/config"
)

// TestLoad tests the Load function with various scenarios.
func TestLoad(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		envVars    map[string]string
		wantErr    bool
		validate   func(*testing.T, *config.Config)
	}{
		{
			name: "valid minimal config",
			configYAML: `
server:
  port: 8080
redis:
  addresses:
    - localhost:6379
`,
			wantErr: false,
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addresses)
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "complete config with all options",
			configYAML: `
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 60s
  write_timeout: 60s
  gin_mode: debug
redis:
  mode: sentinel
  addresses:
    - sentinel1:26379
    - sentinel2:26379
  master_name: mymaster
  password: secret
  db: 1
  pool_size: 20
tls:
  enabled: false
observability:
  logging:
    level: debug
    format: console
  metrics:
    enabled: true
    path: /prometheus
security:
  enable_cors: true
  rate_limit_enabled: true
  rate_limit_requests: 500
  rate_limit_window: 30s
wps:
  poll_interval: 2s
  max_status_queries: 50
  request_encoding: POST
  requests_per_second: 2.5
  burst: 3
  user_agent: test-agent
  allowed_hosts:
    - "*.example.org"
  services:
    - http://wps.example.org/wps
    - https://geo.example.org/wps
  execution_ttl: 1h
webhooks:
  worker_count: 8
  max_retries: 5
  retry_backoff: 2s
  max_backoff: 1m
  hmac_secret: s3cret
  allow_insecure: true
`,
			wantErr: false,
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "debug", cfg.Server.GinMode)

				assert.Equal(t, "sentinel", cfg.Redis.Mode)
				assert.Equal(t, "mymaster", cfg.Redis.MasterName)
				assert.Equal(t, "secret", cfg.Redis.Password)
				assert.Equal(t, 1, cfg.Redis.DB)
				assert.Equal(t, 20, cfg.Redis.PoolSize)

				assert.Equal(t, "debug", cfg.Observability.Logging.Level)
				assert.Equal(t, "console", cfg.Observability.Logging.Format)
				assert.True(t, cfg.Observability.Metrics.Enabled)
				assert.Equal(t, "/prometheus", cfg.Observability.Metrics.Path)

				assert.True(t, cfg.Security.EnableCORS)
				assert.Equal(t, 500, cfg.Security.RateLimitRequests)
				assert.Equal(t, 30*time.Second, cfg.Security.RateLimitWindow)

				assert.Equal(t, 2*time.Second, cfg.WPS.PollInterval)
				assert.Equal(t, 50, cfg.WPS.MaxStatusQueries)
				assert.Equal(t, "POST", cfg.WPS.RequestEncoding)
				assert.InDelta(t, 2.5, cfg.WPS.RequestsPerSecond, 1e-9)
				assert.Equal(t, 3, cfg.WPS.Burst)
				assert.Equal(t, "test-agent", cfg.WPS.UserAgent)
				assert.Equal(t, []string{"*.example.org"}, cfg.WPS.AllowedHosts)
				assert.Len(t, cfg.WPS.Services, 2)
				assert.Equal(t, time.Hour, cfg.WPS.ExecutionTTL)

				assert.Equal(t, 8, cfg.Webhooks.WorkerCount)
				assert.Equal(t, 5, cfg.Webhooks.MaxRetries)
				assert.Equal(t, 2*time.Second, cfg.Webhooks.RetryBackoff)
				assert.Equal(t, time.Minute, cfg.Webhooks.MaxBackoff)
				assert.Equal(t, "s3cret", cfg.Webhooks.HMACSecret)
				assert.True(t, cfg.Webhooks.AllowInsecure)

				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name: "environment variable override",
			configYAML: `
server:
  port: 8080
redis:
  addresses:
    - localhost:6379
`,
			envVars: map[string]string{
				"WPSGATE_SERVER_PORT":                 "9999",
				"WPSGATE_OBSERVABILITY_LOGGING_LEVEL": "debug",
				"WPSGATE_REDIS_MODE":                  "sentinel",
				"WPSGATE_WPS_POLL_INTERVAL":           "250ms",
				"WPSGATE_WPS_MAX_STATUS_QUERIES":      "7",
				"WPSGATE_WEBHOOKS_HMAC_SECRET":        "from-env",
			},
			wantErr: false,
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, 9999, cfg.Server.Port)
				assert.Equal(t, "debug", cfg.Observability.Logging.Level)
				assert.Equal(t, "sentinel", cfg.Redis.Mode)
				assert.Equal(t, 250*time.Millisecond, cfg.WPS.PollInterval)
				assert.Equal(t, 7, cfg.WPS.MaxStatusQueries)
				assert.Equal(t, "from-env", cfg.Webhooks.HMACSecret)
			},
		},
		{
			name: "invalid yaml",
			configYAML: `
server:
  port: not_a_number
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temporary config file
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0600)
			require.NoError(t, err)

			// Set environment variables
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := config.Load(configPath)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

// TestLoadSecretsFromEnvironment covers keys that have no default in a config file.
func TestLoadSecretsFromEnvironment(t *testing.T) {
	t.Setenv("WPSGATE_REDIS_PASSWORD", "redis-secret")
	t.Setenv("WPSGATE_REDIS_MASTER_NAME", "mymaster")
	t.Setenv("WPSGATE_TLS_CERT_FILE", "/etc/wpsgate/tls.crt")
	t.Setenv("WPSGATE_TLS_KEY_FILE", "/etc/wpsgate/tls.key")
	t.Setenv("WPSGATE_TLS_CA_FILE", "/etc/wpsgate/ca.crt")
	t.Setenv("WPSGATE_WEBHOOKS_HMAC_SECRET", "hook-secret")

	cfg, err := config.Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "redis-secret", cfg.Redis.Password)
	assert.Equal(t, "mymaster", cfg.Redis.MasterName)
	assert.Equal(t, "/etc/wpsgate/tls.crt", cfg.TLS.CertFile)
	assert.Equal(t, "/etc/wpsgate/tls.key", cfg.TLS.KeyFile)
	assert.Equal(t, "/etc/wpsgate/ca.crt", cfg.TLS.CAFile)
	assert.Equal(t, "hook-secret", cfg.Webhooks.HMACSecret)
}

// TestLoadWithoutConfigFile tests loading with environment variables only.
func TestLoadWithoutConfigFile(t *testing.T) {
	t.Setenv("WPSGATE_SERVER_PORT", "8081")

	cfg, err := config.Load("/nonexistent/config.yaml")

	// Should not error even if file doesn't exist (env vars provide values)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.NoError(t, cfg.Validate())
}

// validConfig returns a configuration that passes validation.
func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:    8080,
			GinMode: "release",
		},
		Redis: config.RedisConfig{
			Mode:      "standalone",
			Addresses: []string{"localhost:6379"},
		},
		Observability: config.ObservabilityConfig{
			Logging: config.LoggingConfig{Level: "info", Format: "json"},
			Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		},
		Security: config.SecurityConfig{
			RateLimitEnabled:  true,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		WPS: config.WPSConfig{
			PollInterval:      5 * time.Second,
			MaxStatusQueries:  20,
			RequestEncoding:   "GET",
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Webhooks: config.WebhooksConfig{
			Enabled:      true,
			WorkerCount:  4,
			MaxRetries:   3,
			RetryBackoff: time.Second,
			MaxBackoff:   time.Minute,
		},
	}
}

// TestValidate tests the Validate function with various configurations.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(*config.Config) {},
			wantErr: false,
		},
		{
			name:    "invalid server port - too low",
			mutate:  func(c *config.Config) { c.Server.Port = 0 },
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name:    "invalid server port - too high",
			mutate:  func(c *config.Config) { c.Server.Port = 70000 },
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name:    "invalid gin mode",
			mutate:  func(c *config.Config) { c.Server.GinMode = "verbose" },
			wantErr: true,
			errMsg:  "invalid gin_mode",
		},
		{
			name:    "cluster redis mode is not supported",
			mutate:  func(c *config.Config) { c.Redis.Mode = "cluster" },
			wantErr: true,
			errMsg:  "invalid redis mode",
		},
		{
			name:    "empty redis addresses",
			mutate:  func(c *config.Config) { c.Redis.Addresses = nil },
			wantErr: true,
			errMsg:  "redis addresses cannot be empty",
		},
		{
			name:    "sentinel without master name",
			mutate:  func(c *config.Config) { c.Redis.Mode = "sentinel" },
			wantErr: true,
			errMsg:  "master_name is required",
		},
		{
			name:    "invalid redis db",
			mutate:  func(c *config.Config) { c.Redis.DB = 16 },
			wantErr: true,
			errMsg:  "invalid redis db",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Observability.Logging.Level = "trace" },
			wantErr: true,
			errMsg:  "invalid logging level",
		},
		{
			name:    "invalid log format",
			mutate:  func(c *config.Config) { c.Observability.Logging.Format = "xml" },
			wantErr: true,
			errMsg:  "invalid logging format",
		},
		{
			name:    "metrics enabled without path",
			mutate:  func(c *config.Config) { c.Observability.Metrics.Path = "" },
			wantErr: true,
			errMsg:  "metrics path cannot be empty",
		},
		{
			name:    "invalid rate limit requests",
			mutate:  func(c *config.Config) { c.Security.RateLimitRequests = 0 },
			wantErr: true,
			errMsg:  "invalid rate_limit_requests",
		},
		{
			name:    "rate limit window too short",
			mutate:  func(c *config.Config) { c.Security.RateLimitWindow = time.Millisecond },
			wantErr: true,
			errMsg:  "invalid rate_limit_window",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *config.Config) { c.WPS.PollInterval = 0 },
			wantErr: true,
			errMsg:  "invalid wps poll_interval",
		},
		{
			name:    "zero max status queries",
			mutate:  func(c *config.Config) { c.WPS.MaxStatusQueries = 0 },
			wantErr: true,
			errMsg:  "invalid wps max_status_queries",
		},
		{
			name:    "unknown request encoding",
			mutate:  func(c *config.Config) { c.WPS.RequestEncoding = "PUT" },
			wantErr: true,
			errMsg:  "invalid wps request_encoding",
		},
		{
			name:    "zero requests per second",
			mutate:  func(c *config.Config) { c.WPS.RequestsPerSecond = 0 },
			wantErr: true,
			errMsg:  "invalid wps requests_per_second",
		},
		{
			name:    "zero burst",
			mutate:  func(c *config.Config) { c.WPS.Burst = 0 },
			wantErr: true,
			errMsg:  "invalid wps burst",
		},
		{
			name:    "malformed allowed host pattern",
			mutate:  func(c *config.Config) { c.WPS.AllowedHosts = []string{"[a-"} },
			wantErr: true,
			errMsg:  "invalid wps allowed_hosts pattern",
		},
		{
			name:    "non-http service url",
			mutate:  func(c *config.Config) { c.WPS.Services = []string{"ftp://wps.example.org/"} },
			wantErr: true,
			errMsg:  "invalid wps service url",
		},
		{
			name:    "negative execution ttl",
			mutate:  func(c *config.Config) { c.WPS.ExecutionTTL = -time.Second },
			wantErr: true,
			errMsg:  "invalid wps execution_ttl",
		},
		{
			name:    "zero webhook workers",
			mutate:  func(c *config.Config) { c.Webhooks.WorkerCount = 0 },
			wantErr: true,
			errMsg:  "invalid webhooks worker_count",
		},
		{
			name:    "webhook workers ignored when disabled",
			mutate:  func(c *config.Config) { c.Webhooks = config.WebhooksConfig{Enabled: false} },
			wantErr: false,
		},
		{
			name: "max backoff below retry backoff",
			mutate: func(c *config.Config) {
				c.Webhooks.RetryBackoff = time.Minute
				c.Webhooks.MaxBackoff = time.Second
			},
			wantErr: true,
			errMsg:  "max_backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestValidateTLSConfig tests TLS-specific validation.
func TestValidateTLSConfig(t *testing.T) {
	tmpDir := t.TempDir()
	certFile := filepath.Join(tmpDir, "cert.pem")
	keyFile := filepath.Join(tmpDir, "key.pem")
	caFile := filepath.Join(tmpDir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, []byte("cert"), 0600))
	require.NoError(t, os.WriteFile(keyFile, []byte("key"), 0600))
	require.NoError(t, os.WriteFile(caFile, []byte("ca"), 0600))

	tests := []struct {
		name    string
		tls     config.TLSConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid TLS config",
			tls: config.TLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				ClientAuth: "none",
				MinVersion: "1.3",
			},
			wantErr: false,
		},
		{
			name:    "TLS enabled without cert file",
			tls:     config.TLSConfig{Enabled: true, KeyFile: keyFile, MinVersion: "1.3"},
			wantErr: true,
			errMsg:  "cert_file is required",
		},
		{
			name:    "TLS enabled without key file",
			tls:     config.TLSConfig{Enabled: true, CertFile: certFile, MinVersion: "1.3"},
			wantErr: true,
			errMsg:  "key_file is required",
		},
		{
			name: "cert file does not exist",
			tls: config.TLSConfig{
				Enabled:    true,
				CertFile:   filepath.Join(tmpDir, "missing.pem"),
				KeyFile:    keyFile,
				ClientAuth: "none",
				MinVersion: "1.3",
			},
			wantErr: true,
			errMsg:  "cert_file does not exist",
		},
		{
			name: "mTLS without CA file",
			tls: config.TLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				ClientAuth: "require-and-verify",
				MinVersion: "1.3",
			},
			wantErr: true,
			errMsg:  "ca_file is required",
		},
		{
			name: "valid mTLS config",
			tls: config.TLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				CAFile:     caFile,
				ClientAuth: "require-and-verify",
				MinVersion: "1.2",
			},
			wantErr: false,
		},
		{
			name: "invalid client auth",
			tls: config.TLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				ClientAuth: "sometimes",
				MinVersion: "1.3",
			},
			wantErr: true,
			errMsg:  "invalid tls client_auth",
		},
		{
			name: "invalid min version",
			tls: config.TLSConfig{
				Enabled:    true,
				CertFile:   certFile,
				KeyFile:    keyFile,
				ClientAuth: "none",
				MinVersion: "1.1",
			},
			wantErr: true,
			errMsg:  "invalid tls min_version",
		},
		{
			name:    "TLS disabled skips checks",
			tls:     config.TLSConfig{Enabled: false, CertFile: "/does/not/exist"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.TLS = tt.tls

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestSetDefaults verifies that default values are set correctly.
func TestSetDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	minimalConfig := `
redis:
  addresses:
    - localhost:6379
`
	err := os.WriteFile(configPath, []byte(minimalConfig), 0600)
	require.NoError(t, err)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "release", cfg.Server.GinMode)

	assert.Equal(t, "standalone", cfg.Redis.Mode)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 5, cfg.Redis.MinIdleConns)

	assert.False(t, cfg.TLS.Enabled)
	assert.Equal(t, "1.3", cfg.TLS.MinVersion)

	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Observability.Metrics.Path)
	assert.Equal(t, "wpsgate", cfg.Observability.Metrics.Namespace)

	assert.True(t, cfg.Security.RateLimitEnabled)
	assert.Equal(t, 100, cfg.Security.RateLimitRequests)
	assert.True(t, cfg.Security.SecurityHeaders)

	assert.Equal(t, 5*time.Second, cfg.WPS.PollInterval)
	assert.Equal(t, 20, cfg.WPS.MaxStatusQueries)
	assert.Equal(t, "GET", cfg.WPS.RequestEncoding)
	assert.Equal(t, 30*time.Second, cfg.WPS.RequestTimeout)
	assert.Equal(t, 10, cfg.WPS.Burst)
	assert.Equal(t, 24*time.Hour, cfg.WPS.ExecutionTTL)
	assert.Equal(t, 10*time.Minute, cfg.WPS.RefreshInterval)

	assert.True(t, cfg.Webhooks.Enabled)
	assert.Equal(t, 4, cfg.Webhooks.WorkerCount)
	assert.Equal(t, 3, cfg.Webhooks.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Webhooks.MaxBackoff)
	assert.False(t, cfg.Webhooks.AllowInsecure)
}
