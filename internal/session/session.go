// Package session implements conversation state for Aida: a bounded,
// time-bounded window of prior turns that survives across independent CLI
// invocations. The active window lives in a JSON history file guarded by an
// exclusive advisory lock; every turn is additionally appended to a durable
// SQLite log that outlives session expiry.
package session

import (
	"time"
)

// Outcome records how a turn was concluded.
type Outcome string

const (
	// OutcomeExecuted means the capability was resolved and invoked successfully.
	OutcomeExecuted Outcome = "executed"
	// OutcomeClarifying means required parameters were missing and the user
	// was asked to supply them; the turn's capability and entities form the
	// pending candidate for the next utterance.
	OutcomeClarifying Outcome = "clarifying"
	// OutcomeRejected means confidence was below threshold and suggestions
	// were returned instead of invoking anything.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the capability was invoked but execution failed or
	// timed out.
	OutcomeFailed Outcome = "failed"
)

// Turn is one persisted conversation exchange. Append-only: once written it
// is never mutated.
type Turn struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Timestamp  time.Time         `json:"timestamp"`
	RawInput   string            `json:"raw_input"`
	Capability string            `json:"capability,omitempty"` // empty when unresolved
	Entities   map[string]string `json:"entities,omitempty"`
	Confidence float64           `json:"confidence"`
	Outcome    Outcome           `json:"outcome"`
}

// Session is an ordered, bounded sequence of turns. The window is pure FIFO:
// once the length exceeds the configured maximum, the oldest turn is
// evicted. A session is live while now - LastActivity < the session timeout;
// expiry discards it wholesale.
type Session struct {
	ID           string    `json:"session_id"`
	Turns        []Turn    `json:"turns"`
	LastActivity time.Time `json:"last_activity"`

	maxTurns int
}

// newSession creates an empty session with the given window size.
func newSession(id string, maxTurns int) *Session {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxContextTurns
	}
	return &Session{ID: id, maxTurns: maxTurns}
}

// Append adds a turn to the window, evicting the oldest turn first when the
// window is full, and advances LastActivity.
func (s *Session) Append(t Turn) {
	s.Turns = append(s.Turns, t)
	if len(s.Turns) > s.maxTurns {
		excess := len(s.Turns) - s.maxTurns
		s.Turns = s.Turns[excess:]
	}
	if t.Timestamp.After(s.LastActivity) {
		s.LastActivity = t.Timestamp
	}
}

// Last returns the most recent turn, or false for an empty session.
func (s *Session) Last() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// Pending describes the candidate left hanging by a clarifying turn: the
// capability that was confidently classified plus the entities gathered so
// far. The next utterance is first tried as an answer filling its missing
// slots before being re-classified from scratch.
type Pending struct {
	Capability string
	Entities   map[string]string
	Confidence float64
}

// Pending returns the pending clarification candidate, derived from the most
// recent turn. Nil unless that turn's outcome is OutcomeClarifying.
func (s *Session) Pending() *Pending {
	last, ok := s.Last()
	if !ok || last.Outcome != OutcomeClarifying || last.Capability == "" {
		return nil
	}
	entities := make(map[string]string, len(last.Entities))
	for k, v := range last.Entities {
		entities[k] = v
	}
	return &Pending{
		Capability: last.Capability,
		Entities:   entities,
		Confidence: last.Confidence,
	}
}

// expired reports whether the session's last activity is older than timeout.
// An empty session never expires.
func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	if len(s.Turns) == 0 {
		return false
	}
	return now.Sub(s.LastActivity) >= timeout
}
