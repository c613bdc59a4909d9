package conversation

import (
	"sync"
	"time"

	"github.com/whale-professor/Solvan/internal/domain"
)

// State names one step of the per-owner collection flow.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingType    State = "awaiting_type"
	StateAwaitingPattern State = "awaiting_pattern"
	StateAwaitingCase    State = "awaiting_case"
)

// Session is the per-owner ephemeral draft. Created lazily on the first
// inbound event, cleared on submit and on the idle sweep; never persisted.
// The mutex serializes all event handling for one owner.
type Session struct {
	mu sync.Mutex

	State      State
	SearchType domain.SearchType
	Pattern    string

	// promptID is the message carrying the current inline-choice keyboard,
	// deleted once a button is pressed.
	promptID string

	// touchedAt is guarded by the machine's map lock, not the session
	// mutex: the sweeper reads it without entering the per-owner path.
	touchedAt time.Time
}

func newSession(now time.Time) *Session {
	return &Session{State: StateIdle, touchedAt: now}
}

// reset clears the draft and returns the session to idle.
func (s *Session) reset() {
	s.State = StateIdle
	s.SearchType = ""
	s.Pattern = ""
	s.promptID = ""
}
