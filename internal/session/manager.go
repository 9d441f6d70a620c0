package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"aida/internal/store"
)

// Defaults for the session window and timeout, matching the documented
// configuration defaults.
const (
	DefaultMaxContextTurns = 10
	DefaultSessionTimeout  = 30 * time.Minute
)

// ErrMalformedHistory wraps a history file that could not be decoded. The
// manager recovers by starting a fresh session; the sentinel exists so tests
// and callers can identify the condition in logs.
var ErrMalformedHistory = errors.New("session: malformed history file")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// HistoryFile is the path of the persisted session window (a JSON array
	// of turn records). Ignored when Persist is false.
	HistoryFile string

	// Persist controls whether the session window is written to disk at all.
	Persist bool

	// MaxContextTurns is the FIFO window size. Defaults to 10.
	MaxContextTurns int

	// Timeout is the inactivity duration after which a session is discarded
	// wholesale. Defaults to 30 minutes.
	Timeout time.Duration

	// Log is the optional durable conversation log. Flushed turns are
	// appended there in addition to the history file.
	Log *store.Store

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager owns session lifecycle: loading the active session from disk,
// appending turns, and flushing the result back, durably, even when the
// request itself failed.
//
// When persistence is enabled, Load acquires an exclusive advisory lock on
// the history file's companion lock file and holds it until Flush (or
// Release). Concurrent assistant invocations therefore serialize their
// read-modify-append-write cycles instead of overwriting each other.
type Manager struct {
	cfg  ManagerConfig
	now  func() time.Time
	lock *os.File // held between Load and Flush when persisting

	// staged are turns appended since Load, pending durable log write.
	staged []Turn
}

// NewManager creates a Manager. Zero-valued config fields take the
// documented defaults.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = DefaultMaxContextTurns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{cfg: cfg, now: now}
}

// Load returns the active session. With persistence enabled it takes the
// exclusive history lock first and keeps it until Flush; the returned
// session reflects the persisted turn sequence truncated to the window, or a
// fresh empty session when there is no usable history (missing file,
// malformed file, expired session).
func (m *Manager) Load(ctx context.Context) (*Session, error) {
	m.staged = nil

	if !m.cfg.Persist {
		return newSession(uuid.New().String(), m.cfg.MaxContextTurns), nil
	}

	if err := m.acquireLock(); err != nil {
		return nil, err
	}

	turns, err := readHistory(m.cfg.HistoryFile)
	if err != nil {
		// Malformed history must not take the assistant down: log and start
		// over with an empty session.
		slog.Warn("session: starting fresh session", "err", err)
		turns = nil
	}

	sess := rebuild(turns, m.cfg.MaxContextTurns)
	if sess.expired(m.now(), m.cfg.Timeout) {
		slog.Debug("session: previous session expired",
			"session_id", sess.ID,
			"last_activity", sess.LastActivity,
		)
		return newSession(uuid.New().String(), m.cfg.MaxContextTurns), nil
	}
	return sess, nil
}

// Append records a turn on the session and stages it for the durable log.
func (m *Manager) Append(sess *Session, t Turn) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.SessionID == "" {
		t.SessionID = sess.ID
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = m.now()
	}
	sess.Append(t)
	m.staged = append(m.staged, t)
}

// NewTurn builds a turn stamped with the manager's clock and a fresh ID.
func (m *Manager) NewTurn(sess *Session, rawInput string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		Timestamp: m.now(),
		RawInput:  rawInput,
	}
}

// Flush writes the session window back to the history file, appends staged
// turns to the durable log, and releases the history lock. It must be called
// exactly once per Load, request failure included; callers defer it.
func (m *Manager) Flush(ctx context.Context, sess *Session) error {
	defer m.releaseLock()

	var firstErr error

	if m.cfg.Log != nil {
		for _, t := range m.staged {
			rec := store.TurnRecord{
				TurnID:     t.ID,
				SessionID:  t.SessionID,
				Timestamp:  t.Timestamp,
				RawInput:   t.RawInput,
				Capability: t.Capability,
				Entities:   t.Entities,
				Confidence: t.Confidence,
				Outcome:    string(t.Outcome),
			}
			if err := m.cfg.Log.AppendTurn(ctx, rec); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	m.staged = nil

	if m.cfg.Persist {
		if err := writeHistory(m.cfg.HistoryFile, sess.Turns); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Release drops the history lock without writing. Safe to call when no lock
// is held.
func (m *Manager) Release() {
	m.releaseLock()
}

// acquireLock opens <history>.lock and takes an exclusive advisory lock,
// blocking until it is granted.
func (m *Manager) acquireLock() error {
	if m.lock != nil {
		return nil
	}
	lockPath := m.cfg.HistoryFile + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("session: create history directory: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("session: open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return fmt.Errorf("session: acquire history lock: %w", err)
	}
	m.lock = f
	return nil
}

func (m *Manager) releaseLock() {
	if m.lock == nil {
		return
	}
	if err := unlockFile(m.lock); err != nil {
		slog.Warn("session: release history lock", "err", err)
	}
	m.lock.Close()
	m.lock = nil
}

// readHistory loads the persisted turn array. A missing file is an empty
// history; an unreadable or undecodable file is ErrMalformedHistory.
func readHistory(path string) ([]Turn, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHistory, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHistory, err)
	}
	return turns, nil
}

// writeHistory atomically replaces the history file with the given turns.
func writeHistory(path string, turns []Turn) error {
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode history: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("session: write history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("session: replace history: %w", err)
	}
	return nil
}

// rebuild reconstructs the active session from persisted turns: the window
// is the trailing maxTurns records of the most recent session ID.
func rebuild(turns []Turn, maxTurns int) *Session {
	if len(turns) == 0 {
		return newSession(uuid.New().String(), maxTurns)
	}

	id := turns[len(turns)-1].SessionID
	if id == "" {
		id = uuid.New().String()
	}
	sess := newSession(id, maxTurns)
	for _, t := range turns {
		if t.SessionID != id && t.SessionID != "" {
			continue
		}
		sess.Append(t)
	}
	return sess
}
