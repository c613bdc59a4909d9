// Package store holds the transient result store used when no database is
// configured. The durable driver lives in internal/adapter/repo.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/whale-professor/Solvan/internal/domain"
)

type entry struct {
	result    domain.JobResult
	expiresAt time.Time
}

// Memory is a TTL-keyed in-memory domain.ResultRepository. Writes are
// write-once per key; reads treat expired entries as absent and reap them
// lazily, without extending the TTL of live entries.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swappable so tests can step time instead of sleeping.
	now func() time.Time
}

// NewMemory creates an empty in-memory result store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Put stores the result under jobID for ttl. A second write to a live key is
// a no-op.
func (m *Memory) Put(_ context.Context, jobID string, result domain.JobResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[jobID]; ok && m.now().Before(e.expiresAt) {
		return nil
	}
	m.entries[jobID] = entry{result: result, expiresAt: m.now().Add(ttl)}
	return nil
}

// Get retrieves an unexpired result or domain.ErrResultMissing.
func (m *Memory) Get(_ context.Context, jobID string) (domain.JobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[jobID]
	if !ok {
		return domain.JobResult{}, domain.ErrResultMissing
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, jobID)
		return domain.JobResult{}, domain.ErrResultMissing
	}
	return e.result, nil
}

var _ domain.ResultRepository = (*Memory)(nil)
