package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Session is one tracking session from start to stop.
type Session struct {
	ID        string
	StartedAt time.Time
	// EndedAt is zero while the session is running or if the process died.
	EndedAt   time.Time
	EndReason string
	Summary   json.RawMessage
}

// Event is a state transition recorded during a session.
type Event struct {
	ID        int64
	SessionID string
	At        time.Time
	From      string
	To        string
}

// SessionRepository records tracking sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Begin inserts a new open session.
func (r *SessionRepository) Begin(id string, at time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, at,
	)
	return err
}

// AddEvent appends a transition to session id.
func (r *SessionRepository) AddEvent(id string, at time.Time, from, to string) error {
	_, err := r.db.Exec(
		`INSERT INTO session_events (session_id, at, from_state, to_state) VALUES (?, ?, ?, ?)`,
		id, at, from, to,
	)
	return err
}

// Finish closes session id with a reason and a JSON summary.
func (r *SessionRepository) Finish(id string, at time.Time, reason string, summary json.RawMessage) error {
	if summary == nil {
		summary = json.RawMessage("{}")
	}

	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, end_reason = ?, summary = ? WHERE id = ?`,
		at, reason, string(summary), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, end_reason, summary FROM sessions WHERE id = ?`,
		id,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List returns the most recent sessions, newest first. limit <= 0 returns all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, end_reason, summary
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Events returns the transitions of session id in order.
func (r *SessionRepository) Events(id string) ([]Event, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, at, from_state, to_state
		 FROM session_events WHERE session_id = ? ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.At, &e.From, &e.To); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Delete removes a session and its events.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	s := &Session{}
	var ended sql.NullTime
	var summary string

	if err := row.Scan(&s.ID, &s.StartedAt, &ended, &s.EndReason, &summary); err != nil {
		return nil, err
	}
	if ended.Valid {
		s.EndedAt = ended.Time
	}
	s.Summary = json.RawMessage(summary)
	return s, nil
}
