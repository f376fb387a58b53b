package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ev119/erlocator/internal/config"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/core/kv"
	"github.com/ev119/erlocator/internal/core/quota"
	"github.com/ev119/erlocator/internal/core/region"
	"github.com/ev119/erlocator/internal/core/store"
	"github.com/ev119/erlocator/internal/core/upstream"
)

// pipeline bundles the search stack built from one Config.
type pipeline struct {
	Store        kv.Store
	Guard        *quota.Guard
	Orchestrator *engine.Orchestrator
}

func (p *pipeline) Close() error {
	if p == nil || p.Store == nil {
		return nil
	}
	return p.Store.Close()
}

// openKV opens the configured shared key-value store.
func openKV(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.KV.Driver {
	case config.KVDriverMemory:
		return kv.NewMemory(kv.MemoryOptions{
			NumCounters: cfg.KV.Memory.NumCounters,
			MaxCost:     cfg.KV.Memory.MaxCost,
		})
	case config.KVDriverRedis:
		client, err := kv.DialRedis(kv.RedisOptions{
			Addr:     cfg.KV.Redis.Addr,
			Password: cfg.KV.Redis.Password,
			DB:       cfg.KV.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis unavailable at %s: %w", cfg.KV.Redis.Addr, err)
		}
		return client, nil
	case config.KVDriverLibsql:
		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		// Drop rows left behind by earlier runs.
		if _, err := db.PurgeExpired(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("purge expired kv entries: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported kv driver %q", cfg.KV.Driver)
	}
}

// openScanner opens the configured store for admin commands. The in-process
// driver cannot be inspected from another process.
func openScanner(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	if cfg.KV.Driver == config.KVDriverMemory {
		return nil, errors.New("kv.driver is memory; quota state lives only inside the serving process (use redis or libsql)")
	}
	return openKV(ctx, cfg)
}

// buildPipeline wires the clients, the quota guard and the orchestrator.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pipeline, error) {
	rules, err := region.LoadRules(cfg.Region.RulesFile)
	if err != nil {
		return nil, err
	}

	shared, err := openKV(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Upstream.ServiceKey == "" && logger != nil {
		logger.Warn("upstream.service_key is empty; public-data requests will be rejected")
	}

	httpClient := &http.Client{Timeout: cfg.Upstream.Timeout}
	guard := quota.New(shared, cfg.Realtime.QuotaBlockTTL)

	realtime := &upstream.RealtimeClient{
		Client:     httpClient,
		BaseURL:    cfg.Upstream.RealtimeURL,
		ServiceKey: cfg.Upstream.ServiceKey,
		Guard:      guard,
		Cache:      shared,
		CacheTTL:   cfg.Realtime.CacheTTL,
		Logger:     logger,
	}
	if cfg.Realtime.Breaker.Enabled {
		realtime.Breaker = upstream.NewBreaker(upstream.BreakerSettings{
			Name:                "realtime",
			ConsecutiveFailures: cfg.Realtime.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Realtime.Breaker.OpenTimeout,
			HalfOpenRequests:    cfg.Realtime.Breaker.HalfOpenRequests,
			Interval:            cfg.Realtime.Breaker.Interval,
		})
	}

	orchestrator := &engine.Orchestrator{
		Base: &upstream.LocationClient{
			Client:     httpClient,
			BaseURL:    cfg.Upstream.LocationURL,
			ServiceKey: cfg.Upstream.ServiceKey,
			Logger:     logger,
		},
		Realtime:  realtime,
		Regions:   region.New(rules),
		Logger:    logger,
		PairLimit: cfg.Realtime.PairLimit,
		PageSize:  cfg.Realtime.PageSize,
		MaxPages:  cfg.Realtime.MaxPages,
	}

	if logger != nil {
		logger.Debug("Search pipeline ready",
			zap.String("kv_driver", cfg.KV.Driver),
			zap.Int("pair_limit", cfg.Realtime.PairLimit),
			zap.Duration("quota_block_ttl", guard.BlockTTL()),
			zap.Bool("breaker", realtime.Breaker != nil))
	}

	return &pipeline{Store: shared, Guard: guard, Orchestrator: orchestrator}, nil
}
