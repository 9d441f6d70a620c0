package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "aida.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendTurn_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rec := TurnRecord{
		TurnID:     "turn-1",
		SessionID:  "sess-1",
		Timestamp:  ts,
		RawInput:   "what's the weather in Paris",
		Capability: "weather",
		Entities:   map[string]string{"location": "Paris"},
		Confidence: 0.91,
		Outcome:    "executed",
	}
	if err := s.AppendTurn(ctx, rec); err != nil {
		t.Fatalf("AppendTurn() error: %v", err)
	}

	got, err := s.RecentTurns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTurns() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(RecentTurns) = %d, want 1", len(got))
	}
	r := got[0]
	if r.TurnID != "turn-1" || r.SessionID != "sess-1" || r.Capability != "weather" {
		t.Errorf("reloaded record = %+v", r)
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, ts)
	}
	if r.Entities["location"] != "Paris" {
		t.Errorf("Entities = %v", r.Entities)
	}
	if r.Confidence != 0.91 {
		t.Errorf("Confidence = %v", r.Confidence)
	}
}

func TestAppendTurn_DuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec := TurnRecord{
		TurnID:    "turn-1",
		SessionID: "sess-1",
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		RawInput:  "hello",
		Outcome:   "executed",
	}
	if err := s.AppendTurn(ctx, rec); err != nil {
		t.Fatalf("AppendTurn() error: %v", err)
	}
	if err := s.AppendTurn(ctx, rec); err != nil {
		t.Fatalf("AppendTurn() retry error: %v", err)
	}

	got, err := s.RecentTurns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTurns() error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(RecentTurns) = %d after duplicate append, want 1", len(got))
	}
}

func TestSessionTurns_OrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	turns := []TurnRecord{
		{TurnID: "a1", SessionID: "sess-a", Timestamp: base, RawInput: "first", Outcome: "executed"},
		{TurnID: "b1", SessionID: "sess-b", Timestamp: base.Add(time.Minute), RawInput: "other session", Outcome: "rejected"},
		{TurnID: "a2", SessionID: "sess-a", Timestamp: base.Add(2 * time.Minute), RawInput: "second", Outcome: "clarifying"},
	}
	for _, rec := range turns {
		if err := s.AppendTurn(ctx, rec); err != nil {
			t.Fatalf("AppendTurn(%s) error: %v", rec.TurnID, err)
		}
	}

	got, err := s.SessionTurns(ctx, "sess-a")
	if err != nil {
		t.Fatalf("SessionTurns() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(SessionTurns) = %d, want 2", len(got))
	}
	if got[0].TurnID != "a1" || got[1].TurnID != "a2" {
		t.Errorf("SessionTurns order = [%s %s], want [a1 a2]", got[0].TurnID, got[1].TurnID)
	}

	recent, err := s.RecentTurns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentTurns() error: %v", err)
	}
	if len(recent) != 2 || recent[0].TurnID != "a2" {
		t.Errorf("RecentTurns(2) = %+v, want newest first starting with a2", recent)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aida.db")

	s1, err := New(path)
	if err != nil {
		t.Fatalf("first New() error: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Reopening must not re-run applied migrations.
	s2, err := New(path)
	if err != nil {
		t.Fatalf("second New() error: %v", err)
	}
	defer s2.Close()

	var n int
	if err := s2.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n == 0 {
		t.Error("no applied migrations recorded")
	}
}
