// Package config provides centralized configuration management for erlocator.
// Precedence, lowest first: built-in defaults, the user config file,
// ERLOCATOR_* environment variables, runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ev119/erlocator/internal/appid"
)

// Public-data endpoints for the emergency-room services.
const (
	DefaultLocationURL = "https://apis.data.go.kr/B552657/ErmctInfoInqireService/getEgytLcinfoInqire"
	DefaultRealtimeURL = "https://apis.data.go.kr/B552657/ErmctInfoInqireService/getEmrrmRltmUsefulSckbdInfoInqire"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("health.enabled", true)

	// Upstream defaults
	v.SetDefault("upstream.service_key", "")
	v.SetDefault("upstream.location_url", DefaultLocationURL)
	v.SetDefault("upstream.realtime_url", DefaultRealtimeURL)
	v.SetDefault("upstream.timeout", "10s")

	// Enrichment defaults
	v.SetDefault("realtime.pair_limit", 5)
	v.SetDefault("realtime.page_size", 500)
	v.SetDefault("realtime.max_pages", 30)
	v.SetDefault("realtime.quota_block_ttl", "180s")
	v.SetDefault("realtime.cache_ttl", "60s")
	v.SetDefault("realtime.breaker.enabled", true)
	v.SetDefault("realtime.breaker.consecutive_failures", 5)
	v.SetDefault("realtime.breaker.open_timeout", "30s")
	v.SetDefault("realtime.breaker.half_open_requests", 1)
	v.SetDefault("realtime.breaker.interval", "0s")

	// KV defaults
	v.SetDefault("kv.driver", KVDriverMemory)
	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.password", "")
	v.SetDefault("kv.redis.db", 0)
	v.SetDefault("kv.memory.max_cost", 64<<20)
	v.SetDefault("kv.memory.num_counters", 100000)

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("region.rules_file", "")
}

// Load builds configuration on a fresh viper instance: defaults, the user
// config file when present, environment overrides, then runtimeOverrides.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if err := loadIdentity(ctx); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	if path := DefaultConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	return LoadFrom(v, runtimeOverrides...)
}

// LoadFrom decodes configuration from an already prepared viper instance,
// layering environment and runtime overrides on top.
func LoadFrom(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is nil")
	}
	if err := loadIdentity(context.Background()); err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	cfg := &Config{}
	err = v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.KV.Driver = strings.ToLower(strings.TrimSpace(cfg.KV.Driver))
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	setConfig(cfg)

	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func loadIdentity(ctx context.Context) error {
	configMu.Lock()
	defer configMu.Unlock()
	if appIdentity != nil {
		return nil
	}
	identity, err := appid.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load app identity: %w", err)
	}
	appIdentity = identity
	return nil
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := envPrefix()

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Upstream config
		{Name: prefix + "SERVICE_KEY", Path: []string{"upstream", "service_key"}, Type: EnvString},
		{Name: prefix + "LOCATION_URL", Path: []string{"upstream", "location_url"}, Type: EnvString},
		{Name: prefix + "REALTIME_URL", Path: []string{"upstream", "realtime_url"}, Type: EnvString},
		{Name: prefix + "UPSTREAM_TIMEOUT", Path: []string{"upstream", "timeout"}, Type: EnvString},

		// Enrichment config
		{Name: prefix + "PAIR_LIMIT", Path: []string{"realtime", "pair_limit"}, Type: EnvInt},
		{Name: prefix + "PAGE_SIZE", Path: []string{"realtime", "page_size"}, Type: EnvInt},
		{Name: prefix + "MAX_PAGES", Path: []string{"realtime", "max_pages"}, Type: EnvInt},
		{Name: prefix + "QUOTA_BLOCK_TTL", Path: []string{"realtime", "quota_block_ttl"}, Type: EnvString},
		{Name: prefix + "CACHE_TTL", Path: []string{"realtime", "cache_ttl"}, Type: EnvString},
		{Name: prefix + "BREAKER_ENABLED", Path: []string{"realtime", "breaker", "enabled"}, Type: EnvBool},

		// KV config
		{Name: prefix + "KV_DRIVER", Path: []string{"kv", "driver"}, Type: EnvString},
		{Name: prefix + "REDIS_ADDR", Path: []string{"kv", "redis", "addr"}, Type: EnvString},
		{Name: prefix + "REDIS_PASSWORD", Path: []string{"kv", "redis", "password"}, Type: EnvString},
		{Name: prefix + "REDIS_DB", Path: []string{"kv", "redis", "db"}, Type: EnvInt},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		{Name: prefix + "REGION_RULES_FILE", Path: []string{"region", "rules_file"}, Type: EnvString},

		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

func envPrefix() string {
	prefix := "ERLOCATOR_"
	if appIdentity != nil && strings.TrimSpace(appIdentity.EnvPrefix) != "" {
		prefix = appIdentity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "erlocator" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "erlocator"
	binaryName = "erlocator"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}
