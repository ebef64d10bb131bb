// Package sqlite implements the storage contract on an embedded
// SQLite database. The schema mirrors the filesystem layout: one row
// of state per session, dense positioned rows for the transcript and
// changelog, and JSON payload columns for previews, turn records,
// snapshots, characters, and auxiliary documents. The turn commit and
// the lock claim run inside immediate transactions so their write sets
// are atomic against concurrent connections.
package sqlite

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"torchlight/internal/domain"
)

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// sharedSessionID is the sentinel owner of shared-catalog character
// rows.
const sharedSessionID = 0

const (
	kindTranscript = "transcript"
	kindChangelog  = "changelog"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database at path and ensures the schema.
// If entropySeedPath names an existing NDJSON entropy file and the
// entropy table is empty, the stream is imported so both backends
// share one recorded stream.
func New(path string, entropySeedPath string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_sync=NORMAL&_foreign_keys=1&_busy_timeout=5000",
		strings.TrimPrefix(path, "sqlite://"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a small pool avoids lock churn.
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if entropySeedPath != "" {
		if err := s.seedEntropy(entropySeedPath); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		world TEXT NOT NULL DEFAULT 'default',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session_state (
		session_id INTEGER PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		state_json TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		log_index INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS text_entries (
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('transcript', 'changelog')),
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (session_id, kind, position)
	);
	CREATE TABLE IF NOT EXISTS turns (
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		turn_number INTEGER NOT NULL,
		turn_record_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (session_id, turn_number)
	);
	CREATE TABLE IF NOT EXISTS previews (
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		preview_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (session_id, preview_id)
	);
	CREATE TABLE IF NOT EXISTS locks (
		session_id INTEGER PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		owner TEXT NOT NULL,
		ttl_seconds INTEGER NOT NULL,
		acquired_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS characters (
		session_id INTEGER NOT NULL,
		slug TEXT NOT NULL,
		character_json TEXT NOT NULL,
		is_shared INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (session_id, slug)
	);
	CREATE TABLE IF NOT EXISTS entropy (
		entropy_index INTEGER PRIMARY KEY,
		entropy_json TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		save_id TEXT NOT NULL,
		save_type TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (session_id, save_id)
	);
	CREATE TABLE IF NOT EXISTS session_docs (
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		PRIMARY KEY (session_id, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_text_entries_order ON text_entries(session_id, kind, position);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(session_id, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) seedEntropy(path string) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entropy`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	imported := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var probe struct {
			Index int `json:"i"`
		}
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			return fmt.Errorf("entropy seed file corrupt: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO entropy (entropy_index, entropy_json) VALUES (?, ?)`,
			probe.Index, line,
		); err != nil {
			return err
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if s.logger != nil && imported > 0 {
		s.logger.Info("entropy stream imported", "entries", imported)
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// sessionID resolves a slug, failing with SessionMissing.
func (s *Store) sessionID(ctx context.Context, q queryer, slug string) (int64, error) {
	if !slugPattern.MatchString(slug) {
		return 0, domain.E(domain.KindSchemaViolation,
			"invalid session slug %q: use letters, numbers, hyphens, or underscores", slug)
	}
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM sessions WHERE slug = ?`, slug).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, domain.E(domain.KindSessionMissing, "unknown session %q", slug)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// queryer abstracts *sql.DB and *sql.Tx for helpers used both inside
// and outside transactions.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) touchSession(ctx context.Context, q queryer, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, nowISO(), id)
	return err
}
