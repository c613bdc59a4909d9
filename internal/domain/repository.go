package domain

import (
	"context"
	"time"
)

// Depth is a point-in-time snapshot of queue occupancy.
type Depth struct {
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
}

// JobRepository persists the job queue. Implementations must deliver waiting
// jobs to Claim in FIFO order by enqueue time.
type JobRepository interface {
	// Enqueue stores a new waiting job.
	Enqueue(ctx context.Context, job *Job) error
	// Claim atomically picks the oldest waiting job and marks it active.
	// Returns ErrNoJobAvailable when the queue is empty.
	Claim(ctx context.Context) (*Job, error)
	// Finish moves a job to a terminal status. Returns false when the job
	// was already terminal (or unknown), so callers can guarantee
	// single settlement.
	Finish(ctx context.Context, jobID string, status JobStatus, diagnostic string) (bool, error)
	// CancelWaiting cancels the job only if it has not been claimed yet.
	CancelWaiting(ctx context.Context, jobID string) (bool, error)
	Depth(ctx context.Context) (Depth, error)
	// FlushPending cancels every waiting and active job, returning the ids
	// it touched.
	FlushPending(ctx context.Context) ([]string, error)
}

// ResultRepository is the TTL-keyed result store. Put is write-once per key;
// Get neither extends nor clears the TTL.
type ResultRepository interface {
	Put(ctx context.Context, jobID string, result JobResult, ttl time.Duration) error
	// Get returns ErrResultMissing for absent or expired keys.
	Get(ctx context.Context, jobID string) (JobResult, error)
}

// StatsRepository is the one-way statistics sink.
type StatsRepository interface {
	Record(ctx context.Context, stat GenerationStat) error
}
