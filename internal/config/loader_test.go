package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateXDG(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolateXDG(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify upstream defaults
		assert.Equal(t, DefaultLocationURL, cfg.Upstream.LocationURL)
		assert.Equal(t, DefaultRealtimeURL, cfg.Upstream.RealtimeURL)
		assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
		assert.Empty(t, cfg.Upstream.ServiceKey)

		// Verify enrichment defaults
		assert.Equal(t, 5, cfg.Realtime.PairLimit)
		assert.Equal(t, 500, cfg.Realtime.PageSize)
		assert.Equal(t, 30, cfg.Realtime.MaxPages)
		assert.Equal(t, 180*time.Second, cfg.Realtime.QuotaBlockTTL)
		assert.Equal(t, 60*time.Second, cfg.Realtime.CacheTTL)
		assert.True(t, cfg.Realtime.Breaker.Enabled)
		assert.Equal(t, uint32(5), cfg.Realtime.Breaker.ConsecutiveFailures)
		assert.Equal(t, 30*time.Second, cfg.Realtime.Breaker.OpenTimeout)

		// Verify kv defaults
		assert.Equal(t, KVDriverMemory, cfg.KV.Driver)
		assert.Equal(t, "localhost:6379", cfg.KV.Redis.Addr)
		assert.Equal(t, int64(64<<20), cfg.KV.Memory.MaxCost)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("erlocator"), "erlocator.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.Empty(t, cfg.Region.RulesFile)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolateXDG(t)

		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"realtime": map[string]any{
				"pair_limit": 2,
				"cache_ttl":  "5s",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 2, cfg.Realtime.PairLimit)
		assert.Equal(t, 5*time.Second, cfg.Realtime.CacheTTL)

		// Verify non-overridden values remain default
		assert.Equal(t, 500, cfg.Realtime.PageSize)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolateXDG(t)
		t.Setenv("ERLOCATOR_PORT", "3000")
		t.Setenv("ERLOCATOR_LOG_LEVEL", "warn")
		t.Setenv("ERLOCATOR_METRICS_ENABLED", "false")
		t.Setenv("ERLOCATOR_SERVICE_KEY", "abc%2Bdef")
		t.Setenv("ERLOCATOR_KV_DRIVER", "REDIS")
		t.Setenv("ERLOCATOR_REDIS_ADDR", "cache:6380")
		t.Setenv("ERLOCATOR_QUOTA_BLOCK_TTL", "2m")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, "abc%2Bdef", cfg.Upstream.ServiceKey)
		assert.Equal(t, KVDriverRedis, cfg.KV.Driver)
		assert.Equal(t, "cache:6380", cfg.KV.Redis.Addr)
		assert.Equal(t, 2*time.Minute, cfg.Realtime.QuotaBlockTTL)
	})

	// Test config precedence: runtime > env > file > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolateXDG(t)
		path := DefaultConfigPath()
		require.NotEmpty(t, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 3500\n  host: file-host\nrealtime:\n  max_pages: 12\n"), 0o600))

		t.Setenv("ERLOCATOR_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "file-host", cfg.Server.Host)
		assert.Equal(t, 12, cfg.Realtime.MaxPages)
	})

	t.Run("InvalidDriver", func(t *testing.T) {
		isolateXDG(t)

		_, err := Load(ctx, map[string]any{"kv": map[string]any{"driver": "etcd"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kv.driver")
	})

	t.Run("InvalidLimits", func(t *testing.T) {
		isolateXDG(t)

		_, err := Load(ctx, map[string]any{"realtime": map[string]any{"page_size": 0}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page_size")
	})
}

func TestLoadFrom(t *testing.T) {
	isolateXDG(t)

	v := viper.New()
	SetDefaults(v)
	v.Set("region.rules_file", "/etc/erlocator/rules.yaml")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "/etc/erlocator/rules.yaml", cfg.Region.RulesFile)

	_, err = LoadFrom(nil)
	require.Error(t, err)
}

func TestGetConfig(t *testing.T) {
	isolateXDG(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Realtime.PairLimit, retrieved.Realtime.PairLimit)
}

func TestEnvSpecs(t *testing.T) {
	isolateXDG(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	envVarNames := make(map[string]bool)
	for _, spec := range getEnvSpecs() {
		envVarNames[spec.Name] = true
	}

	for _, name := range []string{
		"ERLOCATOR_LOG_LEVEL",
		"ERLOCATOR_PORT",
		"ERLOCATOR_HOST",
		"ERLOCATOR_SERVICE_KEY",
		"ERLOCATOR_KV_DRIVER",
		"ERLOCATOR_PAIR_LIMIT",
		"ERLOCATOR_DB_PATH",
	} {
		assert.True(t, envVarNames[name], "%s must be mapped", name)
	}
}

func TestDurationParsing(t *testing.T) {
	isolateXDG(t)
	t.Setenv("ERLOCATOR_READ_TIMEOUT", "45s")
	t.Setenv("ERLOCATOR_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}

func TestValidate(t *testing.T) {
	var nilCfg *Config
	require.Error(t, nilCfg.Validate())

	cfg := &Config{
		Upstream: UpstreamConfig{Timeout: time.Second},
		Realtime: RealtimeConfig{PairLimit: 5, PageSize: 500, MaxPages: 30, QuotaBlockTTL: time.Minute},
		KV:       KVConfig{Driver: KVDriverRedis},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kv.redis.addr")

	cfg.KV.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())

	cfg.Realtime.QuotaBlockTTL = 0
	require.Error(t, cfg.Validate())
}
