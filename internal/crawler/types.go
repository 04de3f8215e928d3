// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store. Transitions are forward
// only: queued -> running -> completed|failed.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is a final one.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents the metadata persisted for each submitted crawl request.
// The worker loop is the only writer of a job record once it leaves
// JobStatusQueued; every other component treats the record as read-only.
type Job struct {
	ID            string     `json:"id"`
	URLs          []string   `json:"urls"`
	MaxRequests   int        `json:"maxRequests"`
	Status        JobStatus  `json:"status"`
	TotalURLs     int        `json:"totalUrls"`
	ProcessedURLs int        `json:"processedUrls"`
	FailedURLs    int        `json:"failedUrls"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
	Error         string     `json:"error,omitempty"`
}

// Result is one fetched page's extracted content. Results are append-only:
// once written they are never updated or reordered.
type Result struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	FullText  string    `json:"fullText"`
	CrawledAt time.Time `json:"crawledAt"`
}

// JobUpdate carries a partial update for a job record. Nil fields are
// preserved from the stored record during the merge.
type JobUpdate struct {
	Status        *JobStatus
	TotalURLs     *int
	ProcessedURLs *int
	FailedURLs    *int
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Error         *string
}

// Apply merges the non-nil fields into job.
func (u JobUpdate) Apply(job *Job) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.TotalURLs != nil {
		job.TotalURLs = *u.TotalURLs
	}
	if u.ProcessedURLs != nil {
		job.ProcessedURLs = *u.ProcessedURLs
	}
	if u.FailedURLs != nil {
		job.FailedURLs = *u.FailedURLs
	}
	if u.StartedAt != nil {
		job.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		job.CompletedAt = u.CompletedAt
	}
	if u.Error != nil {
		job.Error = *u.Error
	}
}

// ResultsPage is a paginated slice of a job's result sequence.
type ResultsPage struct {
	Results []Result
	Total   int64
	HasMore bool
}
