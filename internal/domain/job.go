package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job wraps one queued GenerationRequest with its system-assigned identity.
type Job struct {
	ID         string
	Request    GenerationRequest
	Status     JobStatus
	Diagnostic string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobResult is the opaque payload the external generator emits. Field names
// mirror the generator's stdout contract; the service transports them without
// interpreting address or key material.
type JobResult struct {
	Address        string  `json:"address"`
	SecretKey      string  `json:"privateKeyBase58"`
	Attempts       int64   `json:"attempts"`
	ElapsedSeconds float64 `json:"time"`
}

// GenerationStat is one append-only record for the statistics sink.
type GenerationStat struct {
	Timestamp     time.Time
	OwnerID       string
	SearchType    SearchType
	Pattern       string
	CaseSensitive bool
	Address       string
	Attempts      int64
	ElapsedMs     int64
}
