package crawler

import (
	"context"
	"time"
)

// JobStore persists job records and their result sequences.
//
// Put overwrites the full record; there is no partial-field primitive, so
// callers read-modify-write. Get returns (zero, false, nil) when the record
// is missing or expired.
type JobStore interface {
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, bool, error)
	AppendResult(ctx context.Context, jobID string, res Result) error
	ListResults(ctx context.Context, jobID string, offset, limit int64) ([]Result, error)
	ListAllResults(ctx context.Context, jobID string) ([]Result, error)
	CountResults(ctx context.Context, jobID string) (int64, error)
	Delete(ctx context.Context, jobID string) error
	ScanJobs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Queue is a durable FIFO of job identifiers.
//
// DequeueBlocking removes and returns the head identifier, blocking up to
// timeout (zero blocks until the context ends) when the queue is empty. Each
// entry is delivered to exactly one caller.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	DequeueBlocking(ctx context.Context, timeout time.Duration) (string, bool, error)
	Len(ctx context.Context) (int64, error)
}

// Sink receives per-page outcomes as an Engine produces them. Implementations
// must be safe for concurrent use; engines fetch pages in parallel.
type Sink interface {
	// OnResult is called once per successfully fetched page, in the order
	// the engine finishes them.
	OnResult(ctx context.Context, res Result) error
	// OnPageError is called when a page exhausts the engine's retry budget.
	OnPageError(ctx context.Context, pageURL string, pageErr error)
}

// Engine drives page fetching for one job: it visits the seed URLs plus
// discovered links up to the job's MaxRequests budget, reporting every page
// through the sink. A non-nil error from Run is a fatal engine fault; per-page
// failures go through Sink.OnPageError instead.
type Engine interface {
	Run(ctx context.Context, job Job, sink Sink) error
	Close() error
}

// EngineFactory builds a fresh engine for a job. The worker closes the engine
// when the job finishes, whatever the outcome.
type EngineFactory func(job Job) (Engine, error)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
