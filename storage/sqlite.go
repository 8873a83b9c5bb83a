// Package storage provides SQLite run history storage.
//
// Information Hiding:
// - SQLite connection management hidden behind SqliteStorage
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/llmtools/prompt"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one CLI execution over a prompt set.
type Run struct {
	ID          string
	Command     string
	Backend     string
	Source      string
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Invocations int
	Truncated   int
}

// Invocation is one prompt executed within a run.
type Invocation struct {
	RunID     string
	Index     int
	System    string
	User      string
	Output    *string
	Truncated bool
	Duration  time.Duration
	CreatedAt time.Time
}

// SqliteStorage stores run history in a SQLite database file.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			backend TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC);

		CREATE TABLE IF NOT EXISTS invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			prompt_index INTEGER NOT NULL,
			system TEXT NOT NULL,
			user TEXT NOT NULL,
			output TEXT,
			truncated INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
			UNIQUE(run_id, prompt_index)
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_run
		ON invocations(run_id, prompt_index);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StartRun records a new run and returns its ID.
func (s *SqliteStorage) StartRun(ctx context.Context, command, backend, source string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, command, backend, source, status, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, command, backend, source, StatusRunning, time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// FinishRun sets the final status of a run.
func (s *SqliteStorage) FinishRun(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?",
		status, time.Now().UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// AddInvocation stores one executed prompt.
func (s *SqliteStorage) AddInvocation(ctx context.Context, inv Invocation) error {
	var output sql.NullString
	if inv.Output != nil {
		output = sql.NullString{String: *inv.Output, Valid: true}
	}
	created := inv.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations (run_id, prompt_index, system, user, output, truncated, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.RunID, inv.Index, inv.System, inv.User, output, inv.Truncated, inv.Duration.Milliseconds(), created.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means all.
func (s *SqliteStorage) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.command, r.backend, r.source, r.status, r.started_at, r.finished_at,
		       COUNT(i.id), COALESCE(SUM(i.truncated), 0)
		FROM runs r
		LEFT JOIN invocations i ON i.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Command, &r.Backend, &r.Source, &r.Status, &started, &finished, &r.Invocations, &r.Truncated); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Invocations returns the prompts of a run in execution order.
func (s *SqliteStorage) Invocations(ctx context.Context, runID string) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prompt_index, system, user, output, truncated, duration_ms, created_at
		FROM invocations WHERE run_id = ? ORDER BY prompt_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		inv := Invocation{RunID: runID}
		var output sql.NullString
		var durationMS, created int64
		if err := rows.Scan(&inv.Index, &inv.System, &inv.User, &output, &inv.Truncated, &durationMS, &created); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		if output.Valid {
			text := output.String
			inv.Output = &text
		}
		inv.Duration = time.Duration(durationMS) * time.Millisecond
		inv.CreatedAt = time.UnixMilli(created)
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocations: %w", err)
	}
	return out, nil
}

// DeleteRun removes a run and its invocations.
func (s *SqliteStorage) DeleteRun(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM invocations WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("failed to delete invocations: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunRecorder records executor invocations under one run. Invocations
// are numbered in the order they are recorded, so several prompt sets
// may share a run.
type RunRecorder struct {
	storage *SqliteStorage
	runID   string

	mu   sync.Mutex
	next int
}

// Recorder returns a prompt.Recorder writing into runID.
func (s *SqliteStorage) Recorder(runID string) *RunRecorder {
	return &RunRecorder{storage: s, runID: runID}
}

// RecordInvocation implements prompt.Recorder.
func (r *RunRecorder) RecordInvocation(ctx context.Context, inv prompt.Invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := Invocation{
		RunID:    r.runID,
		Index:    r.next,
		System:   inv.Prompt.System,
		User:     inv.Prompt.User,
		Output:   inv.Prompt.Output,
		Duration: inv.Duration,
	}
	if inv.Result != nil {
		rec.Truncated = inv.Result.Truncated
	}
	if err := r.storage.AddInvocation(ctx, rec); err != nil {
		return err
	}
	r.next++
	return nil
}

var _ prompt.Recorder = (*RunRecorder)(nil)
