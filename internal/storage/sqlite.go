// Package storage persists sessions and their event streams to sqlite.
// The event log is append-only and is the durable trace a client replays
// when resuming a session.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/agentd/pkg/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id            TEXT PRIMARY KEY,
	workspace_dir TEXT UNIQUE NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	device_id     TEXT
);
CREATE TABLE IF NOT EXISTS event (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
	timestamp     TIMESTAMP NOT NULL,
	event_type    TEXT NOT NULL,
	event_payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_session ON event(session_id, timestamp);
`

// Store wraps the sqlite database. Safe for concurrent use; writes serialize
// through the connection pool.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. Use ":memory:" for
// tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session row.
func (s *Store) CreateSession(ctx context.Context, session models.Session) error {
	deviceID := sql.NullString{String: session.DeviceID, Valid: session.DeviceID != ""}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, workspace_dir, created_at, device_id) VALUES (?, ?, ?, ?)`,
		session.ID, session.WorkspaceDir, session.CreatedAt.UTC(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_dir, created_at, device_id FROM session WHERE id = ?`, id)
	return scanSession(row)
}

// SessionsByDevice lists a device's sessions, newest first, each with the
// text of its first user message for display.
func (s *Store) SessionsByDevice(ctx context.Context, deviceID string) ([]models.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.workspace_dir, s.created_at, s.device_id,
		       COALESCE((
		           SELECT e.event_payload FROM event e
		           WHERE e.session_id = s.id AND e.event_type = ?
		           ORDER BY e.timestamp, e.rowid LIMIT 1
		       ), '')
		FROM session s
		WHERE s.device_id = ?
		ORDER BY s.created_at DESC`,
		string(models.EventUserMessage), deviceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.SessionSummary
	for rows.Next() {
		var (
			sess     models.Session
			deviceID sql.NullString
			payload  string
		)
		if err := rows.Scan(&sess.ID, &sess.WorkspaceDir, &sess.CreatedAt, &deviceID, &payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.DeviceID = deviceID.String
		out = append(out, models.SessionSummary{
			Session:      sess,
			FirstMessage: firstMessageText(payload),
		})
	}
	return out, rows.Err()
}

// firstMessageText extracts content.text from a persisted user_message
// payload; malformed payloads yield "".
func firstMessageText(payload string) string {
	if payload == "" {
		return ""
	}
	var event models.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return ""
	}
	text, _ := event.Content["text"].(string)
	return text
}

// AppendEvent writes one event to the session's log.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event (id, session_id, timestamp, event_type, event_payload) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, time.Now().UTC(), string(event.Type), string(payload),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventsBySession lists a session's events in append order.
func (s *Store) EventsBySession(ctx context.Context, sessionID string) ([]models.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, timestamp, event_type, event_payload
		 FROM event WHERE session_id = ? ORDER BY timestamp, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []models.EventRecord
	for rows.Next() {
		var rec models.EventRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Timestamp, &rec.EventType, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteEventsFromLastUserMessage removes the most recent user_message event
// and everything after it, mirroring the history rewind of edit-query.
func (s *Store) DeleteEventsFromLastUserMessage(ctx context.Context, sessionID string) error {
	row := s.db.QueryRowContext(ctx,
		`SELECT rowid FROM event
		 WHERE session_id = ? AND event_type = ?
		 ORDER BY timestamp DESC, rowid DESC LIMIT 1`,
		sessionID, string(models.EventUserMessage))
	var rowid int64
	if err := row.Scan(&rowid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("find last user message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM event WHERE session_id = ? AND rowid >= ?`, sessionID, rowid); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var (
		sess     models.Session
		deviceID sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.WorkspaceDir, &sess.CreatedAt, &deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.DeviceID = deviceID.String
	return sess, nil
}
