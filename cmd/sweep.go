package cmd

import (
	"context"
	"log/slog"

	"hyperlocal/internal/components"
	"hyperlocal/internal/config"
	"hyperlocal/internal/observability"
	"hyperlocal/internal/workers"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired incidents once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := components.SetupLogger(cfg.Env)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		clock := clockwork.NewRealClock()
		store, closeStore, err := components.OpenStore(ctx, cfg, clock, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		cache, closeCache, err := components.OpenSweepCache(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeCache()

		sweeper := workers.NewExpirySweeper(store, cache, cfg.Expiry.TTL, cfg.Expiry.SweepInterval, clock, observability.NewMetrics(), logger)
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}

		logger.Info("sweep finished", slog.Int64("deleted", n), slog.Duration("ttl", cfg.Expiry.TTL))
		return nil
	},
}
