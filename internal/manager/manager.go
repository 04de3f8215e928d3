// Package manager composes the job store and queue into the job lifecycle API.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/crawler"
	"github.com/crawlkit/crawld/internal/metrics"
)

// ErrNoURLs is returned when a job is created without seed URLs.
var ErrNoURLs = errors.New("at least one URL required")

// Manager is the single source of truth for job lifecycle operations. The
// producer path and the worker each hold their own Manager so the worker's
// blocking dequeue runs on a dedicated queue connection.
type Manager struct {
	store              crawler.JobStore
	queue              crawler.Queue
	idGen              crawler.IDGenerator
	clock              crawler.Clock
	defaultMaxRequests int
	logger             *zap.Logger
}

// New constructs a Manager.
func New(
	store crawler.JobStore,
	queue crawler.Queue,
	idGen crawler.IDGenerator,
	clock crawler.Clock,
	defaultMaxRequests int,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:              store,
		queue:              queue,
		idGen:              idGen,
		clock:              clock,
		defaultMaxRequests: defaultMaxRequests,
		logger:             logger,
	}
}

// CreateJob validates the batch, writes a queued job record, then enqueues
// its ID. The record must exist before the ID is enqueued, otherwise a
// consumer could pop an ID with no backing record.
func (m *Manager) CreateJob(ctx context.Context, urls []string, maxRequests int) (crawler.Job, error) {
	if len(urls) == 0 {
		return crawler.Job{}, ErrNoURLs
	}
	if maxRequests <= 0 {
		maxRequests = m.defaultMaxRequests
	}
	jobID, err := m.idGen.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := crawler.Job{
		ID:          jobID,
		URLs:        urls,
		MaxRequests: maxRequests,
		Status:      crawler.JobStatusQueued,
		CreatedAt:   m.clock.Now(),
	}
	if err := m.store.Put(ctx, job); err != nil {
		return crawler.Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := m.queue.Enqueue(ctx, jobID); err != nil {
		// The record exists but was never queued; it will expire via TTL.
		m.logger.Error("enqueue after create failed", zap.String("job_id", jobID), zap.Error(err))
		return crawler.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by ID.
func (m *Manager) GetJob(ctx context.Context, jobID string) (crawler.Job, bool, error) {
	return m.store.Get(ctx, jobID)
}

// UpdateJob reads the current record, merges the non-nil fields of upd, and
// writes the result back. The merge is not atomic against concurrent
// updaters; correctness relies on the worker being the only writer of a job
// after it leaves the queued status.
func (m *Manager) UpdateJob(ctx context.Context, jobID string, upd crawler.JobUpdate) (crawler.Job, bool, error) {
	job, ok, err := m.store.Get(ctx, jobID)
	if err != nil || !ok {
		return crawler.Job{}, false, err
	}
	upd.Apply(&job)
	if err := m.store.Put(ctx, job); err != nil {
		return crawler.Job{}, false, fmt.Errorf("update job: %w", err)
	}
	return job, true, nil
}

// GetNextJob pops the next queued ID, blocking up to timeout, and resolves
// it to a record. A popped ID with no backing record is a lost job: logged,
// counted, and reported as absent.
func (m *Manager) GetNextJob(ctx context.Context, timeout time.Duration) (crawler.Job, bool, error) {
	jobID, ok, err := m.queue.DequeueBlocking(ctx, timeout)
	if err != nil || !ok {
		return crawler.Job{}, false, err
	}
	job, ok, err := m.store.Get(ctx, jobID)
	if err != nil {
		return crawler.Job{}, false, fmt.Errorf("resolve dequeued job: %w", err)
	}
	if !ok {
		m.logger.Warn("dequeued job has no record", zap.String("job_id", jobID))
		metrics.ObserveLostJob()
		return crawler.Job{}, false, nil
	}
	return job, true, nil
}

// SaveResult appends one page result to the job's sequence.
func (m *Manager) SaveResult(ctx context.Context, jobID string, res crawler.Result) error {
	if err := m.store.AppendResult(ctx, jobID, res); err != nil {
		return err
	}
	metrics.ObserveResultSaved()
	return nil
}

// GetResults returns a page of the job's results plus pagination state.
func (m *Manager) GetResults(ctx context.Context, jobID string, offset, limit int64) (crawler.ResultsPage, error) {
	results, err := m.store.ListResults(ctx, jobID, offset, limit)
	if err != nil {
		return crawler.ResultsPage{}, err
	}
	total, err := m.store.CountResults(ctx, jobID)
	if err != nil {
		return crawler.ResultsPage{}, err
	}
	return crawler.ResultsPage{
		Results: results,
		Total:   total,
		HasMore: offset+limit < total,
	}, nil
}

// GetAllResults returns the entire result sequence.
func (m *Manager) GetAllResults(ctx context.Context, jobID string) ([]crawler.Result, error) {
	return m.store.ListAllResults(ctx, jobID)
}

// GetResultsCount returns the job's result count.
func (m *Manager) GetResultsCount(ctx context.Context, jobID string) (int64, error) {
	return m.store.CountResults(ctx, jobID)
}

// DeleteJob removes the job record and all its results. It reports false
// when the job does not exist.
func (m *Manager) DeleteJob(ctx context.Context, jobID string) (bool, error) {
	_, ok, err := m.store.Get(ctx, jobID)
	if err != nil || !ok {
		return false, err
	}
	if err := m.store.Delete(ctx, jobID); err != nil {
		return false, err
	}
	return true, nil
}

// QueueDepth reports the number of jobs awaiting a worker.
func (m *Manager) QueueDepth(ctx context.Context) (int64, error) {
	return m.queue.Len(ctx)
}

// Ping reports store liveness.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
