// Package memory provides an in-memory job store for development/testing.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/crawlkit/crawld/internal/crawler"
)

// JobStore implements crawler.JobStore with maps. It ignores TTLs; the
// janitor's retention sweep is the only expiry in this backend.
type JobStore struct {
	mu      sync.RWMutex
	jobs    map[string]crawler.Job
	results map[string][]crawler.Result
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    make(map[string]crawler.Job),
		results: make(map[string][]crawler.Result),
	}
}

// Put writes the full job record, overwriting any prior record.
func (s *JobStore) Put(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (crawler.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok, nil
}

// AppendResult appends to the job's result sequence.
func (s *JobStore) AppendResult(_ context.Context, jobID string, res crawler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = append(s.results[jobID], res)
	return nil
}

// ListResults returns up to limit results starting at offset.
func (s *JobStore) ListResults(_ context.Context, jobID string, offset, limit int64) ([]crawler.Result, error) {
	if offset < 0 {
		return nil, errOffset
	}
	if limit <= 0 {
		return nil, errLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.results[jobID]
	if offset >= int64(len(seq)) {
		return []crawler.Result{}, nil
	}
	end := offset + limit
	if end > int64(len(seq)) {
		end = int64(len(seq))
	}
	out := make([]crawler.Result, end-offset)
	copy(out, seq[offset:end])
	return out, nil
}

// ListAllResults returns the entire result sequence.
func (s *JobStore) ListAllResults(_ context.Context, jobID string) ([]crawler.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.results[jobID]
	out := make([]crawler.Result, len(seq))
	copy(out, seq)
	return out, nil
}

// CountResults returns the result sequence length.
func (s *JobStore) CountResults(_ context.Context, jobID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.results[jobID])), nil
}

// Delete removes the job record and its results.
func (s *JobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	delete(s.results, jobID)
	return nil
}

// ScanJobs enumerates stored job IDs.
func (s *JobStore) ScanJobs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids, nil
}

// Ping always reports healthy.
func (s *JobStore) Ping(_ context.Context) error {
	return nil
}

var (
	errOffset = errors.New("offset must be >= 0")
	errLimit  = errors.New("limit must be > 0")
)
