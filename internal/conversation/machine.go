// Package conversation implements the per-owner flow that collects and
// validates a generation request, submits it, and delivers the outcome back
// to the originating conversation.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/domain"
	"github.com/whale-professor/Solvan/internal/queue"
	"github.com/whale-professor/Solvan/internal/track"
)

// Config carries the machine's tunables.
type Config struct {
	// AdminOwnerID may use the /flush override. Empty disables it.
	AdminOwnerID string
	// AwaitTimeout bounds how long the delivery goroutine waits for a job.
	AwaitTimeout time.Duration
	// SessionIdleTimeout is the sweep threshold for stale drafts.
	SessionIdleTimeout time.Duration
}

// Machine drives the conversation state machine. Events for different owners
// run concurrently; events for one owner are serialized by the session mutex.
type Machine struct {
	disp    *queue.Dispatcher
	waiter  *queue.Waiter
	reg     *track.Registry
	coord   *track.Coordinator
	sender  Sender
	replies *Replies
	cfg     Config
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	// deliveries tracks in-flight delivery goroutines so tests and
	// shutdown can drain them.
	deliveries sync.WaitGroup
}

// NewMachine wires the conversation layer.
func NewMachine(disp *queue.Dispatcher, waiter *queue.Waiter, reg *track.Registry, coord *track.Coordinator, sender Sender, cfg Config, log zerolog.Logger) *Machine {
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = 630 * time.Second
	}
	if cfg.SessionIdleTimeout <= 0 {
		cfg.SessionIdleTimeout = 30 * time.Minute
	}
	return &Machine{
		disp:     disp,
		waiter:   waiter,
		reg:      reg,
		coord:    coord,
		sender:   sender,
		replies:  NewReplies(),
		cfg:      cfg,
		log:      log.With().Str("component", "conversation").Logger(),
		sessions: make(map[string]*Session),
	}
}

// HandleEvent processes one inbound event. Events that do not match the
// session's expected input are ignored without a reply, except free text in
// the pattern-collection step.
func (m *Machine) HandleEvent(ctx context.Context, ev Event) error {
	if ev.OwnerID == "" || ev.ConversationID == "" {
		return nil
	}

	s := m.session(ev.OwnerID)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case KindCommand:
		return m.handleCommand(ctx, s, ev)
	case KindButton:
		return m.handleButton(ctx, s, ev)
	case KindText:
		return m.handleText(ctx, s, ev)
	default:
		return nil
	}
}

func (m *Machine) handleCommand(ctx context.Context, s *Session, ev Event) error {
	cmd := strings.ToLower(strings.TrimSpace(ev.Payload))
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start", "/help":
		return m.send(ctx, ev, "help")
	case "/generate":
		if m.reg.InFlight(ev.OwnerID) {
			return m.send(ctx, ev, "already_in_flight")
		}
		s.reset()
		s.State = StateAwaitingType
		return m.sendChoices(ctx, s, ev, "choose_type", []Choice{
			{Label: m.replies.Text(ev.Language, "btn_prefix"), Data: "prefix"},
			{Label: m.replies.Text(ev.Language, "btn_suffix"), Data: "suffix"},
		})
	case "/cancel":
		return m.handleCancel(ctx, s, ev)
	case "/queue":
		depth, err := m.disp.Depth(ctx)
		if err != nil {
			return m.send(ctx, ev, "temporary_error")
		}
		return m.send(ctx, ev, "queue_depth", depth.Waiting, depth.Active)
	case "/flush":
		return m.handleFlush(ctx, ev)
	default:
		return nil
	}
}

func (m *Machine) handleButton(ctx context.Context, s *Session, ev Event) error {
	switch s.State {
	case StateAwaitingType:
		st, err := domain.ParseSearchType(strings.TrimSpace(ev.Payload))
		if err != nil {
			return nil
		}
		m.clearPrompt(ctx, s, ev)
		s.SearchType = st
		s.State = StateAwaitingPattern
		return m.send(ctx, ev, "ask_pattern")
	case StateAwaitingCase:
		var caseSensitive bool
		switch strings.TrimSpace(ev.Payload) {
		case "yes":
			caseSensitive = true
		case "no":
			caseSensitive = false
		default:
			return nil
		}
		m.clearPrompt(ctx, s, ev)
		return m.submit(ctx, s, ev, caseSensitive)
	default:
		return nil
	}
}

func (m *Machine) handleText(ctx context.Context, s *Session, ev Event) error {
	if s.State != StateAwaitingPattern {
		return nil
	}
	pattern := strings.TrimSpace(ev.Payload)
	if err := domain.ValidatePattern(pattern); err != nil {
		return m.send(ctx, ev, "invalid_pattern", trimSentinel(err))
	}
	s.Pattern = pattern
	s.State = StateAwaitingCase
	return m.sendChoices(ctx, s, ev, "ask_case", []Choice{
		{Label: m.replies.Text(ev.Language, "btn_yes"), Data: "yes"},
		{Label: m.replies.Text(ev.Language, "btn_no"), Data: "no"},
	})
}

// submit builds the request, claims the owner's single in-flight slot, and
// queues the job. Submission is fire-and-forget from the state machine's
// point of view: the session returns to idle immediately and the reply is
// delivered asynchronously.
func (m *Machine) submit(ctx context.Context, s *Session, ev Event, caseSensitive bool) error {
	req := domain.GenerationRequest{
		SearchType:     s.SearchType,
		Pattern:        s.Pattern,
		CaseSensitive:  caseSensitive,
		OwnerID:        ev.OwnerID,
		ConversationID: ev.ConversationID,
	}
	s.reset()

	if err := m.reg.Reserve(ev.OwnerID); err != nil {
		return m.send(ctx, ev, "already_in_flight")
	}

	jobID, err := m.disp.Submit(ctx, req)
	if err != nil {
		m.reg.Release(ev.OwnerID)
		m.log.Error().Err(err).Str("owner_id", ev.OwnerID).Msg("submit failed")
		return m.send(ctx, ev, "submit_failed")
	}
	m.reg.Bind(ev.OwnerID, jobID)

	position := 1
	if depth, err := m.disp.Depth(ctx); err == nil {
		position = depth.Waiting + depth.Active
	}

	queuedMsg, err := m.sender.Send(ctx, ev.ConversationID, m.replies.Text(ev.Language, "queued", position))
	if err != nil {
		m.log.Warn().Err(err).Str("owner_id", ev.OwnerID).Msg("queued reply failed")
	}

	m.deliveries.Add(1)
	go m.deliver(jobID, req, queuedMsg, ev.Language)
	return nil
}

// deliver blocks on the completion waiter and renders the outcome. It runs
// detached from the inbound request context: the reply path must survive the
// webhook request that started it.
func (m *Machine) deliver(jobID string, req domain.GenerationRequest, queuedMsg, lang string) {
	defer m.deliveries.Done()
	ctx := context.Background()

	result, err := m.waiter.Await(ctx, jobID, m.cfg.AwaitTimeout)

	// A cancel or flush already released the owner; the outcome of an
	// abandoned job is dropped and its stored result left to expire.
	if !m.reg.Bound(req.OwnerID, jobID) {
		m.log.Debug().Str("job_id", jobID).Msg("outcome dropped, owner no longer tracks job")
		return
	}

	switch {
	case err == nil:
		m.reg.ReleaseIf(req.OwnerID, jobID)
		text := m.replies.Text(lang, "result", result.Address, result.SecretKey, result.Attempts, result.ElapsedSeconds)
		m.reply(ctx, req.ConversationID, queuedMsg, text)
	case errors.Is(err, domain.ErrJobCancelled):
		m.reg.ReleaseIf(req.OwnerID, jobID)
	case errors.Is(err, domain.ErrAwaitTimeout):
		// The job may still finish; keep the slot so the owner must
		// decide explicitly via /cancel.
		m.reply(ctx, req.ConversationID, queuedMsg, m.replies.Text(lang, "await_timeout"))
	default:
		m.reg.ReleaseIf(req.OwnerID, jobID)
		m.log.Warn().Err(err).Str("job_id", jobID).Msg("generation failed")
		m.reply(ctx, req.ConversationID, queuedMsg, m.replies.Text(lang, "failed", trimSentinel(err)))
	}
}

// reply edits the "queued" message in place when possible, falling back to a
// fresh message.
func (m *Machine) reply(ctx context.Context, conversationID, messageID, text string) {
	if messageID != "" {
		if err := m.sender.Edit(ctx, conversationID, messageID, text); err == nil {
			return
		}
	}
	if _, err := m.sender.Send(ctx, conversationID, text); err != nil {
		m.log.Error().Err(err).Str("conversation_id", conversationID).Msg("reply failed")
	}
}

func (m *Machine) handleCancel(ctx context.Context, s *Session, ev Event) error {
	s.reset()
	removed, err := m.coord.CancelOwner(ctx, ev.OwnerID)
	switch {
	case errors.Is(err, domain.ErrNoActiveJob):
		return m.send(ctx, ev, "no_active")
	case removed:
		return m.send(ctx, ev, "cancelled_removed")
	default:
		return m.send(ctx, ev, "cancelled_active")
	}
}

func (m *Machine) handleFlush(ctx context.Context, ev Event) error {
	if m.cfg.AdminOwnerID == "" || ev.OwnerID != m.cfg.AdminOwnerID {
		m.log.Warn().Str("owner_id", ev.OwnerID).Msg("flush denied")
		return nil
	}
	count, err := m.FlushAll(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("flush failed")
		return m.send(ctx, ev, "temporary_error")
	}
	return m.send(ctx, ev, "flush_done", count)
}

// FlushAll clears all pending jobs, every registry slot and every session
// draft. Also reachable through the admin HTTP endpoint.
func (m *Machine) FlushAll(ctx context.Context) (int, error) {
	count, err := m.disp.FlushPending(ctx)
	m.reg.Flush()
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	return count, err
}

// SweepIdleSessions drops drafts untouched for the configured idle timeout,
// bounding the session map. In-flight tracking lives in the registry and is
// unaffected.
func (m *Machine) SweepIdleSessions() int {
	cutoff := time.Now().Add(-m.cfg.SessionIdleTimeout)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for owner, s := range m.sessions {
		if s.touchedAt.Before(cutoff) {
			delete(m.sessions, owner)
			removed++
		}
	}
	return removed
}

// RunSweeper periodically sweeps idle sessions until ctx ends.
func (m *Machine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepIdleSessions(); n > 0 {
				m.log.Debug().Int("count", n).Msg("idle sessions swept")
			}
		}
	}
}

// Drain waits for in-flight delivery goroutines. Used in tests and shutdown.
func (m *Machine) Drain() {
	m.deliveries.Wait()
}

func (m *Machine) session(ownerID string) *Session {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[ownerID]
	if !ok {
		s = newSession(now)
		m.sessions[ownerID] = s
	}
	s.touchedAt = now
	return s
}

func (m *Machine) send(ctx context.Context, ev Event, key string, args ...any) error {
	_, err := m.sender.Send(ctx, ev.ConversationID, m.replies.Text(ev.Language, key, args...))
	if err != nil {
		m.log.Error().Err(err).Str("conversation_id", ev.ConversationID).Str("reply", key).Msg("send failed")
	}
	return err
}

func (m *Machine) sendChoices(ctx context.Context, s *Session, ev Event, key string, choices []Choice) error {
	msgID, err := m.sender.SendChoices(ctx, ev.ConversationID, m.replies.Text(ev.Language, key), choices)
	if err != nil {
		m.log.Error().Err(err).Str("conversation_id", ev.ConversationID).Str("reply", key).Msg("send failed")
		return err
	}
	s.promptID = msgID
	return nil
}

// clearPrompt removes the spent inline-keyboard message. Best effort, a stale
// keyboard is cosmetic.
func (m *Machine) clearPrompt(ctx context.Context, s *Session, ev Event) {
	if s.promptID == "" {
		return
	}
	if err := m.sender.Delete(ctx, ev.ConversationID, s.promptID); err != nil {
		m.log.Debug().Err(err).Str("conversation_id", ev.ConversationID).Msg("prompt delete failed")
	}
	s.promptID = ""
}

// trimSentinel strips the wrapped sentinel prefix from validation and worker
// errors so replies read cleanly.
func trimSentinel(err error) string {
	msg := err.Error()
	for _, sentinel := range []string{domain.ErrInvalidPattern.Error() + ": ", domain.ErrGenerationFailed.Error() + ": "} {
		msg = strings.TrimPrefix(msg, sentinel)
	}
	return msg
}
