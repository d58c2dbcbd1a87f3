// Package sqlite persists host sessions and their acknowledged map states.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rexliu/geonb/pkg/session"
)

// ErrNotFound indicates a session without stored state.
var ErrNotFound = errors.New("not found")

// Store owns the SQLite database for a profile.
type Store struct {
	db          *sql.DB
	path        string
	journalMode string
	synchronous string
}

// Option tunes pragmas applied by Init.
type Option func(*Store)

// WithJournalMode sets PRAGMA journal_mode.
func WithJournalMode(mode string) Option {
	return func(s *Store) {
		if mode != "" {
			s.journalMode = strings.ToUpper(mode)
		}
	}
}

// WithSynchronous sets PRAGMA synchronous.
func WithSynchronous(level string) Option {
	return func(s *Store) {
		if level != "" {
			s.synchronous = strings.ToUpper(level)
		}
	}
}

// SessionInfo summarises one stored session.
type SessionInfo struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	EndReason string     `json:"endReason,omitempty"`
	Snapshots int        `json:"snapshots"`
}

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Open initializes a SQLite database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path, journalMode: "DELETE", synchronous: "FULL"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	journalModes = map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	syncLevels   = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
)

// Init ensures pragmas and schema are configured.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	if !journalModes[s.journalMode] {
		return fmt.Errorf("unsupported journal mode %q", s.journalMode)
	}
	if !syncLevels[s.synchronous] {
		return fmt.Errorf("unsupported synchronous level %q", s.synchronous)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA journal_mode = %s;", s.journalMode),
		fmt.Sprintf("PRAGMA synchronous = %s;", s.synchronous),
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return s.applySchema(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			end_reason TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			state TEXT NOT NULL,
			layer_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, id);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// StartSession records a new session. Starting an existing id is a no-op.
func (s *Store) StartSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions(id, started_at) VALUES (?, ?);
	`, id, time.Now().UnixMilli())
	return err
}

// EndSession marks a session finished.
func (s *Store) EndSession(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL;
	`, time.Now().UnixMilli(), reason, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveState appends a snapshot of st for the session.
func (s *Store) SaveState(ctx context.Context, sessionID string, st session.MapState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions(id, started_at) VALUES (?, ?);
	`, sessionID, time.Now().UnixMilli()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots(session_id, state, layer_count, created_at) VALUES (?, ?, ?, ?);
	`, sessionID, string(raw), len(st.Layers), time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestState returns the newest snapshot of a session.
func (s *Store) LatestState(ctx context.Context, sessionID string) (session.MapState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM snapshots WHERE session_id = ? ORDER BY id DESC LIMIT 1;
	`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return session.MapState{}, fmt.Errorf("state for %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return session.MapState{}, err
	}
	var st session.MapState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return session.MapState{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

// LatestSession returns the most recently started session id.
func (s *Store) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1;
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.ended_at, COALESCE(s.end_reason, ''), COUNT(n.id)
		FROM sessions s LEFT JOIN snapshots n ON n.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.rowid DESC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionInfo
	for rows.Next() {
		var (
			info    SessionInfo
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&info.ID, &started, &ended, &info.EndReason, &info.Snapshots); err != nil {
			return nil, err
		}
		info.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			info.EndedAt = &t
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep snapshots of a session.
func (s *Store) Prune(ctx context.Context, sessionID string, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE session_id = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE session_id = ? ORDER BY id DESC LIMIT ?
		);
	`, sessionID, sessionID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
