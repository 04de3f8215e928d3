// Package worker implements the job execution loop.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/crawler"
	"github.com/crawlkit/crawld/internal/manager"
	"github.com/crawlkit/crawld/internal/metrics"
)

// Config controls worker loop timing.
type Config struct {
	// IdleBackoff is slept after a transient store fault before retrying.
	IdleBackoff time.Duration
	// DequeueTimeout bounds each blocking pop so the stop signal is
	// observed between jobs.
	DequeueTimeout time.Duration
}

// Worker claims queued jobs one at a time and drives them to completion
// through the fetching engine. It is the only writer of a job's record while
// the job is running.
type Worker struct {
	manager  *manager.Manager
	engines  crawler.EngineFactory
	retry    *crawler.ExponentialRetryPolicy
	cfg      Config
	clock    crawler.Clock
	logger   *zap.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Worker.
func New(
	mgr *manager.Manager,
	engines crawler.EngineFactory,
	cfg Config,
	clock crawler.Clock,
	logger *zap.Logger,
) *Worker {
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 5 * time.Second
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 5 * time.Second
	}
	return &Worker{
		manager: mgr,
		engines: engines,
		retry:   crawler.NewExponentialRetryPolicy(),
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Stop signals the loop to finish its current job, if any, and exit before
// claiming another. It does not abort a job already being fetched.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run blocks, claiming and executing jobs until Stop is called or the
// context ends. Transient store faults never exit the loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", zap.String("reason", "context done"))
			return
		case <-w.stopCh:
			w.logger.Info("worker stopped", zap.String("reason", "stop requested"))
			return
		default:
		}

		job, ok, err := w.manager.GetNextJob(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("get next job failed", zap.Error(err))
			w.sleep(ctx, w.cfg.IdleBackoff)
			continue
		}
		if !ok {
			// Empty queue or lost job; the blocking pop already waited.
			continue
		}
		w.runJob(ctx, job)
	}
}

func (w *Worker) runJob(ctx context.Context, job crawler.Job) {
	logger := w.logger.With(zap.String("job_id", job.ID))
	logger.Info("processing job", zap.Int("urls", len(job.URLs)), zap.Int("max_requests", job.MaxRequests))

	metrics.SetWorkerBusy(true)
	defer metrics.SetWorkerBusy(false)

	claimed, ok := w.claim(ctx, job)
	if !ok {
		// The job stays queued-looking with no queue entry; it expires via
		// TTL or the janitor.
		logger.Error("claim failed, skipping job")
		return
	}
	job = claimed

	eng, err := w.engines(job)
	if err != nil {
		logger.Error("engine init failed", zap.Error(err))
		w.finalize(ctx, job.ID, crawler.JobStatusFailed, err.Error(), logger)
		return
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			logger.Warn("engine close failed", zap.Error(closeErr))
		}
	}()

	sink := &progressSink{worker: w, jobID: job.ID, logger: logger}
	if runErr := eng.Run(ctx, job, sink); runErr != nil {
		logger.Error("job failed", zap.Error(runErr))
		w.finalize(ctx, job.ID, crawler.JobStatusFailed, runErr.Error(), logger)
		return
	}

	logger.Info("job completed",
		zap.Int("processed", sink.processed),
		zap.Int("failed", sink.failed),
	)
	w.finalize(ctx, job.ID, crawler.JobStatusCompleted, "", logger)
}

// claim transitions the job to running, stamping startedAt and the URL total.
func (w *Worker) claim(ctx context.Context, job crawler.Job) (crawler.Job, bool) {
	now := w.clock.Now()
	status := crawler.JobStatusRunning
	total := len(job.URLs)
	updated, ok, err := w.manager.UpdateJob(ctx, job.ID, crawler.JobUpdate{
		Status:    &status,
		StartedAt: &now,
		TotalURLs: &total,
	})
	if err != nil {
		w.logger.Error("claim update failed", zap.String("job_id", job.ID), zap.Error(err))
		return crawler.Job{}, false
	}
	return updated, ok
}

// finalize stamps the terminal status, retrying transient store faults so a
// finished job is not left looking stuck in running.
func (w *Worker) finalize(ctx context.Context, jobID string, status crawler.JobStatus, cause string, logger *zap.Logger) {
	now := w.clock.Now()
	upd := crawler.JobUpdate{
		Status:      &status,
		CompletedAt: &now,
	}
	if cause != "" {
		upd.Error = &cause
	}

	var err error
	for attempt := 0; ; attempt++ {
		_, _, err = w.manager.UpdateJob(ctx, jobID, upd)
		if !w.retry.ShouldRetry(err, attempt) {
			break
		}
		w.sleep(ctx, w.retry.Backoff(attempt))
	}
	if err != nil {
		logger.Error("final status update failed", zap.String("status", string(status)), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(status))
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-timer.C:
	}
}

// progressSink persists per-page outcomes as the engine produces them, so
// the query surface observes partial progress mid-run. The mutex serializes
// the read-modify-write counter updates issued by concurrent page handlers;
// the worker remains the single logical writer of the job record.
type progressSink struct {
	worker    *Worker
	jobID     string
	logger    *zap.Logger
	mu        sync.Mutex
	processed int
	failed    int
}

// OnResult appends the result and increments the processed counter.
func (s *progressSink) OnResult(ctx context.Context, res crawler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveResult(ctx, res); err != nil {
		s.logger.Error("save result failed", zap.String("url", res.URL), zap.Error(err))
		s.failed++
		s.bumpCounters(ctx)
		return err
	}
	s.processed++
	s.bumpCounters(ctx)
	return nil
}

// OnPageError increments the failed counter for a page that exhausted the
// engine's retry budget. It never aborts the job.
func (s *progressSink) OnPageError(ctx context.Context, pageURL string, pageErr error) {
	s.logger.Warn("page failed", zap.String("url", pageURL), zap.Error(pageErr))
	metrics.ObservePageFailed()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.bumpCounters(ctx)
}

func (s *progressSink) saveResult(ctx context.Context, res crawler.Result) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.worker.manager.SaveResult(ctx, s.jobID, res)
		if !s.worker.retry.ShouldRetry(err, attempt) {
			return err
		}
		s.worker.sleep(ctx, s.worker.retry.Backoff(attempt))
	}
}

func (s *progressSink) bumpCounters(ctx context.Context) {
	processed := s.processed
	failed := s.failed
	_, _, err := s.worker.manager.UpdateJob(ctx, s.jobID, crawler.JobUpdate{
		ProcessedURLs: &processed,
		FailedURLs:    &failed,
	})
	if err != nil {
		s.logger.Warn("progress update failed", zap.Error(err))
	}
}
