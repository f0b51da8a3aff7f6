// Package transcript provides SQLite-backed persistence of session run
// outcomes so operators can audit what the agent was asked and what it
// answered.
package transcript

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses persisted with each transcript row.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

// Run is one completed session run (initial prompt or follow-up).
type Run struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Prompt      string    `json:"prompt"`
	LastMessage string    `json:"lastMessage"`
	Status      string    `json:"status"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Store provides persistent run transcripts backed by SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens a SQLite database at the given path, creating
// parent directories as needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies schema migrations.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []func(*sql.DB) error{
		migrateV1,
	}

	for i := version; i < len(migrations); i++ {
		slog.Info("Applying transcript migration", "version", i+1)
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("record migration v%d: %w", i+1, err)
		}
	}
	return nil
}

// migrateV1 creates the runs table.
func migrateV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE runs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			last_message TEXT NOT NULL,
			status TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)
	`)
	return err
}

// SaveRun inserts one run transcript.
func (s *Store) SaveRun(run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (id, session_id, prompt, last_message, status, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.SessionID, run.Prompt, run.LastMessage, run.Status, run.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(id string) (Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, session_id, prompt, last_message, status, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("get run: %w", err)
	}
	return run, true, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, session_id, prompt, last_message, status, finished_at
		FROM runs ORDER BY finished_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var finishedAt string
	if err := row.Scan(&run.ID, &run.SessionID, &run.Prompt, &run.LastMessage, &run.Status, &finishedAt); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, finishedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	run.FinishedAt = t
	return run, nil
}
