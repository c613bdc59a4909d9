package queue

import (
	"context"
	"sync"
	"time"

	"github.com/whale-professor/Solvan/internal/domain"
)

// Memory is the transient domain.JobRepository used when no database is
// configured, and by the unit tests. Waiting jobs are delivered FIFO by
// enqueue order. Terminal jobs are reaped immediately: their identity is only
// meaningful while a settle can still race another settle, and both Finish
// and CancelWaiting report false for unknown ids.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	fifo []string
}

// NewMemory creates an empty in-memory job queue.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*domain.Job)}
}

// Enqueue stores a new waiting job.
func (m *Memory) Enqueue(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *job
	stored.Status = domain.JobStatusWaiting
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.jobs[stored.ID] = &stored
	m.fifo = append(m.fifo, stored.ID)
	return nil
}

// Claim pops the oldest waiting job and marks it active.
func (m *Memory) Claim(_ context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.fifo) > 0 {
		id := m.fifo[0]
		m.fifo = m.fifo[1:]
		job, ok := m.jobs[id]
		if !ok || job.Status != domain.JobStatusWaiting {
			continue
		}
		job.Status = domain.JobStatusActive
		job.UpdatedAt = time.Now().UTC()
		claimed := *job
		return &claimed, nil
	}
	return nil, domain.ErrNoJobAvailable
}

// Finish settles a non-terminal job exactly once.
func (m *Memory) Finish(_ context.Context, jobID string, status domain.JobStatus, diagnostic string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = status
	job.Diagnostic = diagnostic
	delete(m.jobs, jobID)
	return true, nil
}

// CancelWaiting cancels the job only while it has not been claimed.
func (m *Memory) CancelWaiting(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusWaiting {
		return false, nil
	}
	delete(m.jobs, jobID)
	for i, id := range m.fifo {
		if id == jobID {
			m.fifo = append(m.fifo[:i], m.fifo[i+1:]...)
			break
		}
	}
	return true, nil
}

// Depth returns point-in-time waiting/active counts.
func (m *Memory) Depth(_ context.Context) (domain.Depth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var d domain.Depth
	for _, job := range m.jobs {
		switch job.Status {
		case domain.JobStatusWaiting:
			d.Waiting++
		case domain.JobStatusActive:
			d.Active++
		}
	}
	return d, nil
}

// FlushPending cancels every waiting and active job.
func (m *Memory) FlushPending(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, job := range m.jobs {
		if job.Status == domain.JobStatusWaiting || job.Status == domain.JobStatusActive {
			ids = append(ids, id)
			delete(m.jobs, id)
		}
	}
	m.fifo = nil
	return ids, nil
}

var _ domain.JobRepository = (*Memory)(nil)
