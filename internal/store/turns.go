package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TurnRecord is one row of the conversation log.
type TurnRecord struct {
	ID         int64
	TurnID     string
	SessionID  string
	Timestamp  time.Time
	RawInput   string
	Capability string
	Entities   map[string]string
	Confidence float64
	Outcome    string
}

// AppendTurn writes one turn to the conversation log. Re-appending the same
// turn ID is a no-op, so a retried flush does not duplicate rows.
func (s *Store) AppendTurn(ctx context.Context, rec TurnRecord) error {
	var entitiesJSON sql.NullString
	if len(rec.Entities) > 0 {
		data, err := json.Marshal(rec.Entities)
		if err != nil {
			return fmt.Errorf("store: marshal entities: %w", err)
		}
		entitiesJSON = sql.NullString{String: string(data), Valid: true}
	}

	var capability sql.NullString
	if rec.Capability != "" {
		capability = sql.NullString{String: rec.Capability, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_log (turn_id, session_id, ts, raw_input, capability, entities_json, confidence, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(turn_id) DO NOTHING
	`, rec.TurnID, rec.SessionID, rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.RawInput, capability, entitiesJSON, rec.Confidence, rec.Outcome)
	if err != nil {
		return fmt.Errorf("store: append turn: %w", err)
	}
	return nil
}

// RecentTurns returns the most recent limit turns across all sessions,
// newest first.
func (s *Store) RecentTurns(ctx context.Context, limit int) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, turn_id, session_id, ts, raw_input, capability, entities_json, confidence, outcome
		FROM conversation_log
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		rec, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate turns: %w", err)
	}
	return out, nil
}

// SessionTurns returns every logged turn of one session, oldest first.
func (s *Store) SessionTurns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, turn_id, session_id, ts, raw_input, capability, entities_json, confidence, outcome
		FROM conversation_log
		WHERE session_id = ?
		ORDER BY ts ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: query session turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		rec, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate turns: %w", err)
	}
	return out, nil
}

func scanTurn(rows *sql.Rows) (TurnRecord, error) {
	var (
		rec          TurnRecord
		ts           string
		capability   sql.NullString
		entitiesJSON sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.TurnID, &rec.SessionID, &ts,
		&rec.RawInput, &capability, &entitiesJSON, &rec.Confidence, &rec.Outcome); err != nil {
		return TurnRecord{}, fmt.Errorf("store: scan turn: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return TurnRecord{}, fmt.Errorf("store: parse turn timestamp %q: %w", ts, err)
	}
	rec.Timestamp = parsed
	rec.Capability = capability.String
	if entitiesJSON.Valid {
		if err := json.Unmarshal([]byte(entitiesJSON.String), &rec.Entities); err != nil {
			return TurnRecord{}, fmt.Errorf("store: decode entities: %w", err)
		}
	}
	return rec, nil
}
