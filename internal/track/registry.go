// Package track owns the in-flight bookkeeping: which owner currently has a
// job in the system, and the best-effort cancellation path. The registry is
// the single source of truth for the "at most one in-flight job per owner"
// invariant; the queue itself has no owner-aware admission control.
package track

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/domain"
)

// pending marks a slot reserved between Reserve and Bind, while the submit
// call is still in flight.
const pending = ""

// Registry maps each owner to at most one job id. Reserve performs the
// check-and-set atomically so two racing submissions from the same owner can
// never both be accepted.
type Registry struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]string)}
}

// Reserve claims the owner's single slot. Returns domain.ErrAlreadyInFlight
// when the owner already holds a reserved or bound slot.
func (r *Registry) Reserve(ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[ownerID]; ok {
		return domain.ErrAlreadyInFlight
	}
	r.owners[ownerID] = pending
	return nil
}

// Bind attaches the queued job id to a previously reserved slot.
func (r *Registry) Bind(ownerID, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[ownerID]; ok {
		r.owners[ownerID] = jobID
	}
}

// Release frees the owner's slot unconditionally.
func (r *Registry) Release(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, ownerID)
}

// ReleaseIf frees the slot only while it is still bound to jobID, so a stale
// completion path cannot free a slot the owner has since re-used.
func (r *Registry) ReleaseIf(ownerID, jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.owners[ownerID]; ok && current == jobID {
		delete(r.owners, ownerID)
		return true
	}
	return false
}

// Bound reports whether the owner's slot is currently bound to jobID.
func (r *Registry) Bound(ownerID, jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.owners[ownerID]
	return ok && current == jobID
}

// Lookup returns the owner's bound job id. ok is false when the owner holds
// no slot; a reserved-but-unbound slot reports ok with an empty job id.
func (r *Registry) Lookup(ownerID string) (jobID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobID, ok = r.owners[ownerID]
	return jobID, ok
}

// InFlight reports whether the owner currently holds a slot.
func (r *Registry) InFlight(ownerID string) bool {
	_, ok := r.Lookup(ownerID)
	return ok
}

// Flush clears every slot. Part of the administrative override.
func (r *Registry) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.owners)
}

// Canceller is the dispatcher surface the coordinator needs.
type Canceller interface {
	Cancel(ctx context.Context, jobID string) (bool, error)
}

// Coordinator implements the best-effort cancellation path.
type Coordinator struct {
	reg  *Registry
	disp Canceller
	log  zerolog.Logger
}

// NewCoordinator creates a coordinator over the registry and dispatcher.
func NewCoordinator(reg *Registry, disp Canceller, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		reg:  reg,
		disp: disp,
		log:  log.With().Str("component", "cancel").Logger(),
	}
}

// CancelOwner cancels the owner's tracked job. The registry entry is cleared
// regardless of whether the queue removal succeeded: the owner is always
// free to submit again immediately. removed reports whether the job was
// still waiting and actually left the queue; false means it had already
// started and keeps running unobserved until its result expires.
func (c *Coordinator) CancelOwner(ctx context.Context, ownerID string) (removed bool, err error) {
	jobID, ok := c.reg.Lookup(ownerID)
	if !ok {
		return false, domain.ErrNoActiveJob
	}

	if jobID != pending {
		removed, err = c.disp.Cancel(ctx, jobID)
		if err != nil {
			c.log.Error().Err(err).Str("owner_id", ownerID).Str("job_id", jobID).Msg("queue cancel failed")
		}
	}

	c.reg.Release(ownerID)
	c.log.Info().Str("owner_id", ownerID).Str("job_id", jobID).Bool("removed", removed).Msg("owner cancelled")
	return removed, err
}
