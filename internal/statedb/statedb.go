// Package statedb persists session records and state transitions to a
// SQLite database under the attn config directory. The daemon and the
// `attn sessions` tooling read it; ptyhost only writes.
package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// StateDB wraps a SQLite database for session persistence.
// Thread-safe for concurrent use from multiple goroutines within one
// process. Multiple OS processes can safely read/write via WAL mode +
// busy timeout.
type StateDB struct {
	db *sql.DB
}

// SessionRow represents a session row in the database.
type SessionRow struct {
	ID             string
	Agent          string
	Cwd            string
	CreatedAt      time.Time
	EndedAt        time.Time // zero while the session is alive
	LastState      string
	TranscriptPath string
}

// TransitionRow is one recorded state change for a session.
type TransitionRow struct {
	SessionID string
	FromState string
	ToState   string
	At        time.Time
}

// Open creates or opens a SQLite database at dbPath with WAL mode and
// busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			agent           TEXT NOT NULL DEFAULT '',
			cwd             TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			ended_at        INTEGER NOT NULL DEFAULT 0,
			last_state      TEXT NOT NULL DEFAULT '',
			transcript_path TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			from_state TEXT NOT NULL DEFAULT '',
			to_state   TEXT NOT NULL,
			at         INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create transitions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transitions_session
		ON transitions (session_id, seq)
	`); err != nil {
		return fmt.Errorf("statedb: index transitions: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// AddSession inserts a new session record, replacing any stale row with
// the same id (client-supplied ids may be reused after a crash).
func (s *StateDB) AddSession(id, agent, cwd string, createdAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, agent, cwd, created_at)
		VALUES (?, ?, ?, ?)
	`, id, agent, cwd, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("statedb: add session: %w", err)
	}
	return nil
}

// RecordTransition appends a state change and updates the session's
// last_state in one transaction.
func (s *StateDB) RecordTransition(sessionID, fromState, toState string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO transitions (session_id, from_state, to_state, at)
		VALUES (?, ?, ?, ?)
	`, sessionID, fromState, toState, at.Unix()); err != nil {
		return fmt.Errorf("statedb: insert transition: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE sessions SET last_state = ? WHERE id = ?
	`, toState, sessionID); err != nil {
		return fmt.Errorf("statedb: update last state: %w", err)
	}

	return tx.Commit()
}

// SetTranscriptPath stores the matched transcript file for a session.
func (s *StateDB) SetTranscriptPath(sessionID, path string) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET transcript_path = ? WHERE id = ?
	`, path, sessionID)
	if err != nil {
		return fmt.Errorf("statedb: set transcript path: %w", err)
	}
	return nil
}

// EndSession marks a session as finished.
func (s *StateDB) EndSession(sessionID string, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET ended_at = ? WHERE id = ?
	`, at.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("statedb: end session: %w", err)
	}
	return nil
}

// GetSession loads one session row. Returns sql.ErrNoRows if absent.
func (s *StateDB) GetSession(id string) (SessionRow, error) {
	var row SessionRow
	var created, ended int64
	err := s.db.QueryRow(`
		SELECT id, agent, cwd, created_at, ended_at, last_state, transcript_path
		FROM sessions WHERE id = ?
	`, id).Scan(&row.ID, &row.Agent, &row.Cwd, &created, &ended, &row.LastState, &row.TranscriptPath)
	if err != nil {
		return SessionRow{}, err
	}
	row.CreatedAt = time.Unix(created, 0)
	if ended > 0 {
		row.EndedAt = time.Unix(ended, 0)
	}
	return row, nil
}

// Transitions returns the recorded transitions for a session in order,
// newest last, capped at limit (0 means no cap).
func (s *StateDB) Transitions(sessionID string, limit int) ([]TransitionRow, error) {
	query := `
		SELECT session_id, from_state, to_state, at
		FROM transitions WHERE session_id = ? ORDER BY seq
	`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("statedb: query transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var tr TransitionRow
		var at int64
		if err := rows.Scan(&tr.SessionID, &tr.FromState, &tr.ToState, &at); err != nil {
			return nil, fmt.Errorf("statedb: scan transition: %w", err)
		}
		tr.At = time.Unix(at, 0)
		out = append(out, tr)
	}
	return out, rows.Err()
}
