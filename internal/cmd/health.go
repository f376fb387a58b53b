package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ev119/erlocator/internal/core/store"
	errwrap "github.com/ev119/erlocator/internal/errors"
	"github.com/ev119/erlocator/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify version info, configuration and the configured kv store before serving.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Info("✅ Version information available", zap.String("version", versionInfo.Version))

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid", zap.String("kv_driver", cfg.KV.Driver))
		if cfg.Upstream.ServiceKey == "" {
			logger.Warn("⚠️  upstream.service_key is not set")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		shared, err := openKV(ctx, cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "KV store unavailable", err)
			return
		}
		defer shared.Close() // nolint:errcheck // best-effort cleanup
		if err := shared.Ping(ctx); err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "KV store ping failed", err)
			return
		}
		if db, ok := shared.(*store.Store); ok {
			if n, err := db.CountEntries(ctx, store.EntryQuery{All: true}); err == nil {
				logger.Info("✅ KV store reachable", zap.Int("live_entries", n))
			} else {
				logger.Warn("⚠️  KV store reachable but entries could not be counted", zap.Error(err))
			}
		} else {
			logger.Info("✅ KV store reachable")
		}

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
