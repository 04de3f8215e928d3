// Package redisstore implements the job store on Redis strings and lists.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crawlkit/crawld/internal/crawler"
)

// JobStore persists job records as JSON strings under job:<id> and result
// sequences as lists under results:<id>. Each write refreshes the key's own
// TTL; the two TTLs are independent, so a job header can expire before its
// results. Readers treat a missing header as job absence.
type JobStore struct {
	client     *redis.Client
	jobTTL     time.Duration
	resultsTTL time.Duration
}

// New constructs a JobStore over an existing client.
func New(client *redis.Client, jobTTL, resultsTTL time.Duration) *JobStore {
	return &JobStore{
		client:     client,
		jobTTL:     jobTTL,
		resultsTTL: resultsTTL,
	}
}

// Put serializes and writes the full job record, overwriting any prior
// record and resetting its expiry.
func (s *JobStore) Put(ctx context.Context, job crawler.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, JobKey(job.ID), payload, s.jobTTL).Err(); err != nil {
		return fmt.Errorf("set job: %w", err)
	}
	return nil
}

// Get returns the current record, or (zero, false, nil) when missing or
// expired.
func (s *JobStore) Get(ctx context.Context, jobID string) (crawler.Job, bool, error) {
	val, err := s.client.Get(ctx, JobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return crawler.Job{}, false, nil
	}
	if err != nil {
		return crawler.Job{}, false, fmt.Errorf("get job: %w", err)
	}
	var job crawler.Job
	if err := json.Unmarshal(val, &job); err != nil {
		return crawler.Job{}, false, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, true, nil
}

// AppendResult appends to the job's result list and refreshes the list's
// expiry to the results TTL.
func (s *JobStore) AppendResult(ctx context.Context, jobID string, res crawler.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, ResultsKey(jobID), payload)
	pipe.Expire(ctx, ResultsKey(jobID), s.resultsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// ListResults returns up to limit results starting at offset, in append
// order. An out-of-range offset yields an empty slice.
func (s *JobStore) ListResults(ctx context.Context, jobID string, offset, limit int64) ([]crawler.Result, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	return s.listRange(ctx, jobID, offset, offset+limit-1)
}

// ListAllResults returns the entire result sequence. Callers accept
// unbounded size.
func (s *JobStore) ListAllResults(ctx context.Context, jobID string) ([]crawler.Result, error) {
	return s.listRange(ctx, jobID, 0, -1)
}

func (s *JobStore) listRange(ctx context.Context, jobID string, start, stop int64) ([]crawler.Result, error) {
	vals, err := s.client.LRange(ctx, ResultsKey(jobID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("range results: %w", err)
	}
	results := make([]crawler.Result, 0, len(vals))
	for _, v := range vals {
		var res crawler.Result
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// CountResults returns the length of the job's result list.
func (s *JobStore) CountResults(ctx context.Context, jobID string) (int64, error) {
	n, err := s.client.LLen(ctx, ResultsKey(jobID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// Delete removes the job record and its result list. The two deletions are
// not atomic; an orphaned result list expires via its own TTL.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, JobKey(jobID)).Err(); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if err := s.client.Del(ctx, ResultsKey(jobID)).Err(); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	return nil
}

// ScanJobs enumerates the IDs of all stored job records.
func (s *JobStore) ScanJobs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, jobKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan jobs: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, jobKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// Ping checks store liveness.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
