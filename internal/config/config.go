package config

import (
	"fmt"
	"strings"
	"time"
)

// KV store drivers.
const (
	KVDriverMemory = "memory"
	KVDriverRedis  = "redis"
	KVDriverLibsql = "libsql"
)

// Config represents the complete application configuration.
//
// Values come from defaults, an optional YAML file, ERLOCATOR_* environment
// variables and runtime overrides, in increasing order of precedence.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	KV       KVConfig       `mapstructure:"kv"`
	Store    StoreConfig    `mapstructure:"store"`
	Region   RegionConfig   `mapstructure:"region"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// UpstreamConfig points at the two public-data endpoints. Both share one
// service key.
type UpstreamConfig struct {
	ServiceKey  string        `mapstructure:"service_key"`
	LocationURL string        `mapstructure:"location_url"`
	RealtimeURL string        `mapstructure:"realtime_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RealtimeConfig bounds the enrichment pass and the realtime client caches.
type RealtimeConfig struct {
	PairLimit     int           `mapstructure:"pair_limit"`
	PageSize      int           `mapstructure:"page_size"`
	MaxPages      int           `mapstructure:"max_pages"`
	QuotaBlockTTL time.Duration `mapstructure:"quota_block_ttl"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the realtime circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `mapstructure:"half_open_requests"`
	Interval            time.Duration `mapstructure:"interval"`
}

// KVConfig selects the store holding quota blocks and cached realtime pages.
// Only redis and libsql share state between processes.
type KVConfig struct {
	Driver string       `mapstructure:"driver"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MemoryConfig sizes the in-process cache.
type MemoryConfig struct {
	MaxCost     int64 `mapstructure:"max_cost"`
	NumCounters int64 `mapstructure:"num_counters"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RegionConfig points at an optional replacement for the built-in region rules.
type RegionConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(c.KV.Driver)) {
	case KVDriverMemory, KVDriverLibsql:
	case KVDriverRedis:
		if strings.TrimSpace(c.KV.Redis.Addr) == "" {
			return fmt.Errorf("kv.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unsupported kv.driver %q (expected memory, redis or libsql)", c.KV.Driver)
	}
	if c.Realtime.PairLimit < 1 {
		return fmt.Errorf("realtime.pair_limit must be positive")
	}
	if c.Realtime.PageSize < 1 {
		return fmt.Errorf("realtime.page_size must be positive")
	}
	if c.Realtime.MaxPages < 1 {
		return fmt.Errorf("realtime.max_pages must be positive")
	}
	if c.Realtime.QuotaBlockTTL <= 0 {
		return fmt.Errorf("realtime.quota_block_ttl must be positive")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	return nil
}
