package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/whale-professor/Solvan/internal/domain"
)

// Waiter bridges asynchronous job completion and the synchronous reply path:
// it blocks one caller until the job settles, then reads the result store.
type Waiter struct {
	disp    *Dispatcher
	results domain.ResultRepository
}

// NewWaiter creates a waiter over the dispatcher's notifications and the
// result store.
func NewWaiter(disp *Dispatcher, results domain.ResultRepository) *Waiter {
	return &Waiter{disp: disp, results: results}
}

// Await blocks until the job settles or maxWait elapses.
//
// On a completed notification the result store is read once; a miss is
// reported as domain.ErrResultMissing rather than retried. On failure the
// worker's diagnostic is returned. An elapsed maxWait returns
// domain.ErrAwaitTimeout and deliberately leaves the job (and any running
// process) untouched; cancellation is the caller's explicit decision.
func (w *Waiter) Await(ctx context.Context, jobID string, maxWait time.Duration) (domain.JobResult, error) {
	ch, cancel := w.disp.Subscribe(jobID)
	defer cancel()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case n, ok := <-ch:
		if !ok {
			return domain.JobResult{}, fmt.Errorf("notification channel closed for job %s", jobID)
		}
		switch n.Status {
		case domain.JobStatusCompleted:
			result, err := w.results.Get(ctx, jobID)
			if err != nil {
				return domain.JobResult{}, fmt.Errorf("job %s reported complete: %w", jobID, err)
			}
			return result, nil
		case domain.JobStatusCancelled:
			return domain.JobResult{}, domain.ErrJobCancelled
		default:
			return domain.JobResult{}, fmt.Errorf("%w: %s", domain.ErrGenerationFailed, n.Diagnostic)
		}
	case <-timer.C:
		return domain.JobResult{}, domain.ErrAwaitTimeout
	case <-ctx.Done():
		return domain.JobResult{}, ctx.Err()
	}
}
