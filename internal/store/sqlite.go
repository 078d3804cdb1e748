package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"outreach/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// SQLiteStore persists signed-in users, send runs and chat history in a local
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	email      TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	picture    TEXT NOT NULL DEFAULT '',
	last_login TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS send_runs (
	id          TEXT PRIMARY KEY,
	email       TEXT NOT NULL,
	sheet_url   TEXT NOT NULL DEFAULT '',
	preview     INTEGER NOT NULL DEFAULT 0,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	total       INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	sent        INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running'
);
CREATE INDEX IF NOT EXISTS send_runs_email ON send_runs(email, started_at);

CREATE TABLE IF NOT EXISTS send_events (
	run_id     TEXT NOT NULL REFERENCES send_runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	type       TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	email      TEXT NOT NULL,
	mode       TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_email_mode ON chat_messages(email, mode, id);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// UpsertUser records a sign-in, refreshing name and picture.
func (s *SQLiteStore) UpsertUser(ctx context.Context, id model.Identity, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, picture, last_login) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name       = excluded.name,
			picture    = excluded.picture,
			last_login = excluded.last_login
	`, id.Email, id.Name, id.Picture, formatTime(at))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns the stored identity and last login time.
func (s *SQLiteStore) GetUser(ctx context.Context, email string) (model.Identity, time.Time, error) {
	var id model.Identity
	var last string
	err := s.db.QueryRowContext(ctx,
		"SELECT email, name, picture, last_login FROM users WHERE email = ?", email).
		Scan(&id.Email, &id.Name, &id.Picture, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, time.Time{}, ErrNotFound
	}
	if err != nil {
		return model.Identity{}, time.Time{}, fmt.Errorf("get user: %w", err)
	}
	return id, parseTime(last), nil
}
