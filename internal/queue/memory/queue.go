// Package memory provides a queue implementation for local development.
package memory

import (
	"context"
	"fmt"
	"time"
)

// Queue is a bounded in-memory FIFO with context-aware blocking consumption.
// Each entry is delivered to exactly one consumer.
type Queue struct {
	ch chan string
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan string, capacity),
	}
}

// Enqueue pushes a job ID into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- jobID:
		return nil
	}
}

// DequeueBlocking pops the next job ID, blocking up to timeout when the
// queue is empty. Zero blocks until the context ends. A timeout with no
// entry returns ("", false, nil).
func (q *Queue) DequeueBlocking(ctx context.Context, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 {
		select {
		case <-ctx.Done():
			return "", false, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case jobID := <-q.ch:
			return jobID, true, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-timer.C:
		return "", false, nil
	case jobID := <-q.ch:
		return jobID, true, nil
	}
}

// Len reports the number of queued job IDs.
func (q *Queue) Len(_ context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}
