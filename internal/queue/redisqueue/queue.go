// Package redisqueue implements the job queue as a Redis list.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// queueKey holds the FIFO of job IDs awaiting a worker. It is outside the
// job:* namespace so the janitor's scan never touches it.
const queueKey = "queue:jobs"

// Queue is a durable FIFO backed by RPUSH/BLPOP. Consumers should hold a
// dedicated client: BLPOP parks the connection, and sharing it with ordinary
// reads would head-of-line-block them.
type Queue struct {
	client *redis.Client
}

// New constructs a Queue over an existing client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue appends the job ID to the tail of the queue. Duplicate enqueues
// produce duplicate entries; callers enqueue exactly once per job.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, queueKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// DequeueBlocking removes and returns the head ID, blocking up to timeout
// when the queue is empty. Zero blocks until the context ends. A timeout
// with no entry returns ("", false, nil).
func (q *Queue) DequeueBlocking(ctx context.Context, timeout time.Duration) (string, bool, error) {
	vals, err := q.client.BLPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue job: %w", err)
	}
	if len(vals) != 2 {
		return "", false, fmt.Errorf("dequeue job: unexpected reply of %d values", len(vals))
	}
	return vals[1], true, nil
}

// Len reports the number of queued job IDs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}
