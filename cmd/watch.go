package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperlocal/internal/components"
	"hyperlocal/internal/syncagent"

	"github.com/spf13/cobra"
)

var (
	watchServer     string
	watchMaxBackoff time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Mirror the live incident set of a running server and log every change",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := components.SetupLogger("local")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := syncagent.NewClient(watchServer, logger)
		agent := syncagent.NewAgent(client,
			syncagent.WithLogger(logger),
			syncagent.WithBackoff(500*time.Millisecond, watchMaxBackoff),
			syncagent.WithOnChange(func(reason string, m syncagent.Mirror) {
				logger.Info("mirror changed",
					slog.String("reason", reason),
					slog.Int("incidents", len(m)),
				)
			}),
		)

		err := agent.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "http://localhost:3001", "base URL of the incident server")
	watchCmd.Flags().DurationVar(&watchMaxBackoff, "max-backoff", 30*time.Second, "upper bound between reconnect attempts")
}
