// Package janitor sweeps expired jobs as a backstop to store-level TTL.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/crawler"
	"github.com/crawlkit/crawld/internal/manager"
	"github.com/crawlkit/crawld/internal/metrics"
)

// Janitor periodically deletes job/result pairs older than the retention
// window. Per-job failures are logged and never halt the sweep.
type Janitor struct {
	store     crawler.JobStore
	manager   *manager.Manager
	interval  time.Duration
	retention time.Duration
	clock     crawler.Clock
	logger    *zap.Logger
}

// New constructs a Janitor.
func New(
	store crawler.JobStore,
	mgr *manager.Manager,
	interval time.Duration,
	retention time.Duration,
	clock crawler.Clock,
	logger *zap.Logger,
) *Janitor {
	return &Janitor{
		store:     store,
		manager:   mgr,
		interval:  interval,
		retention: retention,
		clock:     clock,
		logger:    logger,
	}
}

// Run sweeps on the configured interval until the context ends.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("janitor started", zap.Duration("interval", j.interval), zap.Duration("retention", j.retention))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			deleted := j.Sweep(ctx)
			j.logger.Info("sweep completed", zap.Int("deleted", deleted))
		}
	}
}

// Sweep deletes every job whose createdAt is older than the retention
// window, returning the number deleted.
func (j *Janitor) Sweep(ctx context.Context) int {
	ids, err := j.store.ScanJobs(ctx)
	if err != nil {
		j.logger.Error("scan jobs failed", zap.Error(err))
		return 0
	}

	cutoff := j.clock.Now().Add(-j.retention)
	deleted := 0
	for _, id := range ids {
		job, ok, err := j.store.Get(ctx, id)
		if err != nil {
			j.logger.Warn("read job failed", zap.String("job_id", id), zap.Error(err))
			continue
		}
		if !ok || !job.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := j.manager.DeleteJob(ctx, id); err != nil {
			j.logger.Warn("delete job failed", zap.String("job_id", id), zap.Error(err))
			continue
		}
		deleted++
	}
	metrics.ObserveJanitorDeleted(deleted)
	return deleted
}
