package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/piwi3910/wpsgate/internal/config"
	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/storage"
	"github.com/piwi3910/wpsgate/internal/workers"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	cfg, err := loadConfiguration(writeConfig(t, `
server:
  port: 18080
  gin_mode: test
  shutdown_timeout: 2s
redis:
  addresses: ["`+redisAddr+`"]
observability:
  logging:
    level: debug
wps:
  allowed_hosts: ["127.0.0.1"]
  request_timeout: 2s
webhooks:
  enabled: false
`))
	require.NoError(t, err)
	return cfg
}

func TestLoadConfiguration(t *testing.T) {
	t.Run("defaults fill unset values", func(t *testing.T) {
		cfg := testConfig(t, "localhost:6379")
		assert.Equal(t, 18080, cfg.Server.Port)
		assert.Equal(t, "standalone", cfg.Redis.Mode)
		assert.Equal(t, 20, cfg.WPS.MaxStatusQueries)
		assert.Equal(t, 2*time.Second, cfg.WPS.RequestTimeout)
		assert.False(t, cfg.Webhooks.Enabled)
	})

	t.Run("invalid configuration is rejected", func(t *testing.T) {
		_, err := loadConfiguration(writeConfig(t, `
wps:
  request_encoding: PUT
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, err := loadConfiguration(writeConfig(t, "server: [unclosed"))
		assert.Error(t, err)
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{level: "debug", want: zap.DebugLevel},
		{level: "info", want: zap.InfoLevel},
		{level: "warn", want: zap.WarnLevel},
		{level: "error", want: zap.ErrorLevel},
		{level: "fatal", want: zap.FatalLevel},
		{level: "verbose", want: zap.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.level).Level())
		})
	}
}

func TestInitializeLogger(t *testing.T) {
	for _, dev := range []bool{false, true} {
		cfg := &config.Config{}
		cfg.Observability.Logging = config.LoggingConfig{
			Level:       "warn",
			Format:      "console",
			Development: dev,
		}
		logger, err := initializeLogger(cfg)
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zap.InfoLevel))
		assert.True(t, logger.Core().Enabled(zap.WarnLevel))
	}
}

func TestConfigureRedisMode(t *testing.T) {
	tests := []struct {
		name     string
		redis    config.RedisConfig
		wantErr  bool
		sentinel bool
		addr     string
	}{
		{
			name:  "standalone uses the first address",
			redis: config.RedisConfig{Mode: "standalone", Addresses: []string{"redis-a:6379", "redis-b:6379"}},
			addr:  "redis-a:6379",
		},
		{
			name:  "standalone without addresses",
			redis: config.RedisConfig{Mode: "standalone"},
			addr:  "localhost:6379",
		},
		{
			name:     "sentinel",
			redis:    config.RedisConfig{Mode: "sentinel", Addresses: []string{"s1:26379"}, MasterName: "mymaster"},
			sentinel: true,
		},
		{
			name:    "cluster is not supported",
			redis:   config.RedisConfig{Mode: "cluster"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redisCfg := &storage.RedisConfig{}
			err := configureRedisMode(redisCfg, &config.Config{Redis: tt.redis}, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.sentinel, redisCfg.UseSentinel)
			if tt.sentinel {
				assert.Equal(t, "mymaster", redisCfg.MasterName)
				assert.Equal(t, tt.redis.Addresses, redisCfg.SentinelAddrs)
			} else {
				assert.Equal(t, tt.addr, redisCfg.Addr)
			}
		})
	}
}

func TestBuildRedisConfig(t *testing.T) {
	cfg := &config.Config{
		Redis:    config.RedisConfig{DB: 3, Password: "secret", PoolSize: 7},
		WPS:      config.WPSConfig{ExecutionTTL: time.Hour},
		Webhooks: config.WebhooksConfig{AllowInsecure: true},
	}

	redisCfg := buildRedisConfig(cfg, nil)
	assert.Equal(t, 3, redisCfg.DB)
	assert.Equal(t, "secret", redisCfg.Password)
	assert.Equal(t, 7, redisCfg.PoolSize)
	assert.Equal(t, time.Hour, redisCfg.ExecutionTTL)
	assert.True(t, redisCfg.AllowInsecureCallbacks)
}

func TestInitializeRedisStorage(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, err := initializeRedisStorage(testConfig(t, mr.Addr()), zap.NewNop(), nil)
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("connection failure", func(t *testing.T) {
		cfg := &config.Config{
			Redis: config.RedisConfig{
				Mode:         "standalone",
				Addresses:    []string{"localhost:59999"},
				MaxRetries:   1,
				DialTimeout:  time.Second,
				ReadTimeout:  time.Second,
				WriteTimeout: time.Second,
				PoolSize:     1,
			},
		}
		store, err := initializeRedisStorage(cfg, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "connectivity check failed")
	})
}

func TestRegisterBootServices(t *testing.T) {
	capabilities, err := os.ReadFile("../../internal/wpsclient/testdata/capabilities.xml")
	require.NoError(t, err)
	wps := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(capabilities)
	}))
	t.Cleanup(wps.Close)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	cfg := testConfig(t, "localhost:6379")
	cfg.WPS.Services = []string{
		wps.URL + "/wps",
		broken.URL + "/wps",
		"http://wps.example.com/wps",
	}
	client, err := initializeWPSClient(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	reg, err := registry.NewRegistry(zap.NewNop(), &registry.Config{AllowedHosts: cfg.WPS.AllowedHosts})
	require.NoError(t, err)

	registerBootServices(context.Background(), cfg, zap.NewNop(), reg, client, nil)

	entries := reg.List()
	require.Len(t, entries, 2, "host outside the allow-list is skipped")

	assert.True(t, entries[0].Healthy)
	assert.True(t, entries[0].Service.Loaded())
	assert.NotEmpty(t, entries[0].Service.Processes())

	assert.False(t, entries[1].Healthy)
	assert.NotEmpty(t, entries[1].RefreshError)
}

func TestInitializeComponents(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Webhooks.Enabled = true
	cfg.Webhooks.WorkerCount = 1

	ctx, cancel := context.WithCancel(context.Background())
	components, err := initializeComponents(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, components.server)
	require.NotNil(t, components.controller)
	require.NotNil(t, components.worker)

	err = components.store.Client().XGroupCreate(ctx, workers.EventStreamKey, workers.ConsumerGroup, "0").Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUSYGROUP", "worker created the consumer group")

	cancel()
	components.Close(zap.NewNop())
}

func TestApplicationComponents_Close(t *testing.T) {
	t.Run("handles nil components gracefully", func(t *testing.T) {
		components := &applicationComponents{}
		assert.NotPanics(t, func() { components.Close(zap.NewNop()) })
	})
}
