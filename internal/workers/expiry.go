package workers

import (
	"context"
	"log/slog"
	"time"

	"hyperlocal/internal/observability"

	"github.com/jonboulle/clockwork"
)

type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Invalidator drops derived views after a sweep removed rows.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ExpirySweeper hard-deletes incidents older than ttl on a fixed cadence.
type ExpirySweeper struct {
	store    ExpiredDeleter
	cache    Invalidator
	ttl      time.Duration
	interval time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewExpirySweeper(
	store ExpiredDeleter,
	cache Invalidator,
	ttl, interval time.Duration,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		store:    store,
		cache:    cache,
		ttl:      ttl,
		interval: interval,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

func (w *ExpirySweeper) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("expiry sweeper started",
		slog.Duration("ttl", w.ttl),
		slog.Duration("interval", w.interval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry sweeper stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.Chan():
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("expiry sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep runs a single pass and reports how many incidents were removed.
func (w *ExpirySweeper) Sweep(ctx context.Context) (int64, error) {
	const op = "workers.ExpirySweeper.Sweep"

	cutoff := w.clock.Now().Add(-w.ttl)
	n, err := w.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		w.logger.Error("delete expired failed", slog.String("op", op), slog.Any("error", err))
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	w.metrics.IncidentsExpired.Add(float64(n))
	w.logger.Info("expired incidents removed", slog.Int64("count", n), slog.Time("cutoff", cutoff))

	if w.cache != nil {
		if err := w.cache.Invalidate(ctx); err != nil {
			w.logger.Warn("recent cache invalidate failed", slog.String("op", op), slog.Any("error", err))
		}
	}
	return n, nil
}
