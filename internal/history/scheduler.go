package history

// scheduler.go runs periodic retention pruning for a Store. It runs once on
// start and then every Interval until ctx is cancelled. A failed pass is
// logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// PruneConfig controls the prune scheduler. Zero values take defaults.
type PruneConfig struct {
	Retention time.Duration // Age after which entries are deleted (default: 30 days)
	Interval  time.Duration // How often to run (default: 1h)
}

const (
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultPruneInterval = time.Hour
)

func (c PruneConfig) withDefaults() PruneConfig {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.Interval <= 0 {
		c.Interval = DefaultPruneInterval
	}
	return c
}

// StartPruneScheduler blocks, pruning store on a ticker. Run it in a goroutine.
func StartPruneScheduler(ctx context.Context, store Store, cfg PruneConfig) {
	cfg = cfg.withDefaults()
	slog.Info("history prune scheduler started",
		"retention", cfg.Retention.String(),
		"interval", cfg.Interval.String(),
	)

	runPruneJob(ctx, store, cfg.Retention)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history prune scheduler stopped")
			return
		case <-ticker.C:
			runPruneJob(ctx, store, cfg.Retention)
		}
	}
}

// runPruneJob performs one prune pass.
func runPruneJob(ctx context.Context, store Store, retention time.Duration) {
	start := time.Now()
	cutoff := start.Add(-retention).UTC()

	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return
	}

	slog.Info("history pruned",
		"entries_removed", removed,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
