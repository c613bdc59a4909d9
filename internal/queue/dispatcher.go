// Package queue implements the job queue and dispatcher: submission, FIFO
// delivery to executor slots, best-effort cancellation of waiting jobs, and
// per-job completion notifications.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/domain"
)

// Notification is the terminal outcome delivered to subscribers of a job.
type Notification struct {
	JobID      string
	Status     domain.JobStatus
	Diagnostic string
}

// doneRetention bounds how long an unconsumed terminal notification is kept
// for late subscribers. Matches the result TTL: past it the result would be
// gone anyway.
const doneRetention = time.Hour

type doneRecord struct {
	n  Notification
	at time.Time
}

// Dispatcher coordinates the job queue. Durable state lives in the
// JobRepository; the notification hub and the worker wake-up signal are
// process-local, which is sufficient because submitters and executors share
// the process.
//
// Delivery order to executors is whatever the repository provides; both
// drivers in this repo implement FIFO by enqueue time.
type Dispatcher struct {
	repo domain.JobRepository
	log  zerolog.Logger
	poll time.Duration

	mu   sync.Mutex
	subs map[string][]chan Notification
	done map[string]doneRecord
	wake chan struct{}
}

// NewDispatcher creates a dispatcher over the given repository. pollInterval
// is the fallback claim cadence when no wake-up signal arrives (relevant when
// another process writes to a shared database queue).
func NewDispatcher(repo domain.JobRepository, pollInterval time.Duration, log zerolog.Logger) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Dispatcher{
		repo: repo,
		log:  log.With().Str("component", "dispatcher").Logger(),
		poll: pollInterval,
		subs: make(map[string][]chan Notification),
		done: make(map[string]doneRecord),
		wake: make(chan struct{}, 1),
	}
}

// Submit enqueues a validated request and returns the assigned job id.
// Failures here are infrastructure errors; validation happens upstream and is
// re-checked only as a guard.
func (d *Dispatcher) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    domain.JobStatusWaiting,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.repo.Enqueue(ctx, job); err != nil {
		return "", err
	}

	d.log.Info().
		Str("job_id", job.ID).
		Str("owner_id", req.OwnerID).
		Str("search_type", string(req.SearchType)).
		Str("pattern", req.Pattern).
		Msg("job queued")

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return job.ID, nil
}

// Claim blocks until a waiting job is available (or ctx ends) and returns it
// marked active.
func (d *Dispatcher) Claim(ctx context.Context) (*domain.Job, error) {
	for {
		job, err := d.repo.Claim(ctx)
		if err == nil {
			return job, nil
		}
		if err != domain.ErrNoJobAvailable {
			return nil, err
		}

		timer := time.NewTimer(d.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-d.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Cancel removes the job if it is still waiting. Returns false when a worker
// already picked it up or it is terminal; a running process is not signalled.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (bool, error) {
	removed, err := d.repo.CancelWaiting(ctx, jobID)
	if err != nil {
		return false, err
	}
	if removed {
		d.log.Info().Str("job_id", jobID).Msg("waiting job cancelled")
		d.notify(Notification{JobID: jobID, Status: domain.JobStatusCancelled, Diagnostic: "cancelled by owner"})
	}
	return removed, nil
}

// Finish settles a job exactly once and notifies subscribers. The boolean
// reports whether this call performed the settlement.
func (d *Dispatcher) Finish(ctx context.Context, jobID string, status domain.JobStatus, diagnostic string) (bool, error) {
	settled, err := d.repo.Finish(ctx, jobID, status, diagnostic)
	if err != nil {
		return false, err
	}
	if settled {
		d.notify(Notification{JobID: jobID, Status: status, Diagnostic: diagnostic})
	}
	return settled, nil
}

// Depth returns a point-in-time queue snapshot.
func (d *Dispatcher) Depth(ctx context.Context) (domain.Depth, error) {
	return d.repo.Depth(ctx)
}

// FlushPending cancels every waiting and active job and wakes their waiters.
// Used by the administrative override.
func (d *Dispatcher) FlushPending(ctx context.Context) (int, error) {
	ids, err := d.repo.FlushPending(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		d.notify(Notification{JobID: id, Status: domain.JobStatusCancelled, Diagnostic: "flushed by operator"})
	}
	d.log.Info().Int("count", len(ids)).Msg("pending jobs flushed")
	return len(ids), nil
}

// Subscribe registers for the job's terminal notification. The channel is
// buffered and closed after delivery. If the job settled before Subscribe,
// the notification is delivered immediately. The returned func releases the
// subscription.
func (d *Dispatcher) Subscribe(jobID string) (<-chan Notification, func()) {
	ch := make(chan Notification, 1)

	d.mu.Lock()
	if rec, ok := d.done[jobID]; ok {
		delete(d.done, jobID)
		d.mu.Unlock()
		ch <- rec.n
		close(ch)
		return ch, func() {}
	}
	d.subs[jobID] = append(d.subs[jobID], ch)
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		chans := d.subs[jobID]
		for i, c := range chans {
			if c == ch {
				d.subs[jobID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(d.subs[jobID]) == 0 {
			delete(d.subs, jobID)
		}
	}
	return ch, cancel
}

func (d *Dispatcher) notify(n Notification) {
	d.mu.Lock()
	chans := d.subs[n.JobID]
	delete(d.subs, n.JobID)
	if len(chans) == 0 {
		// Nobody is waiting yet; keep the outcome for a late subscriber.
		d.done[n.JobID] = doneRecord{n: n, at: time.Now()}
		d.sweepDoneLocked()
	}
	d.mu.Unlock()

	for _, ch := range chans {
		ch <- n
		close(ch)
	}
}

func (d *Dispatcher) sweepDoneLocked() {
	cutoff := time.Now().Add(-doneRetention)
	for id, rec := range d.done {
		if rec.at.Before(cutoff) {
			delete(d.done, id)
		}
	}
}
