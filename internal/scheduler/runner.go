// Package scheduler drives the time-based transitions: scheduled escrow
// releases and expired evidence deadlines. Both sweeps iterate a batch and
// process each item in its own transaction; a per-item failure is counted
// and skipped, never aborting siblings.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type releaseSweeper interface {
	ProcessScheduledReleases(ctx context.Context) (processed, failed int, err error)
}

type deadlineSweeper interface {
	ProcessExpiredEvidenceDeadlines(ctx context.Context) (processed, failed int, err error)
}

type cacheCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

type Runner struct {
	escrows  releaseSweeper
	disputes deadlineSweeper
	cache    cacheCleaner
	interval time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewRunner(escrows releaseSweeper, disputes deadlineSweeper, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		escrows:  escrows,
		disputes: disputes,
		interval: interval,
		logger:   logger,
	}
}

// SetCacheCleaner adds idempotency-cache expiry to each sweep pass.
func (r *Runner) SetCacheCleaner(c cacheCleaner) {
	r.cache = c
}

// Start launches the ticker loop; it returns immediately. Cancel the
// context and call Wait to shut down cleanly.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunOnce executes both sweeps back to back. Exposed for the standalone
// sweeper binary and for tests.
func (r *Runner) RunOnce(ctx context.Context) {
	r.runSweep(ctx, "scheduled_releases", r.escrows.ProcessScheduledReleases)
	r.runSweep(ctx, "evidence_deadlines", r.disputes.ProcessExpiredEvidenceDeadlines)

	if r.cache != nil {
		removed, err := r.cache.CleanExpired(ctx)
		if err != nil {
			r.logger.Error("cache cleanup failed", "error", err)
		} else if removed > 0 {
			r.logger.Info("cache cleanup completed", "removed", removed)
		}
	}
}

func (r *Runner) runSweep(ctx context.Context, name string, sweep func(context.Context) (int, int, error)) {
	start := time.Now()
	processed, failed, err := sweep(ctx)
	sweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		r.logger.Error("sweep failed", "sweep", name, "error", err)
		return
	}

	sweepItemsProcessed.WithLabelValues(name).Add(float64(processed))
	sweepItemsFailed.WithLabelValues(name).Add(float64(failed))

	if processed > 0 || failed > 0 {
		r.logger.Info("sweep completed",
			"sweep", name,
			"processed", processed,
			"failed", failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
