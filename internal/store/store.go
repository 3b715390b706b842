// Package store records the event log of one harness run: every flag signal
// a node fired and every completion channel the scheduler drove, stamped
// with a logical sequence number.
//
// The store is backed by SQLite so assertions can express counting queries
// in SQL instead of re-walking the in-memory trace. Harness runs open it at
// ":memory:"; results never persist across runs.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store holds the per-run event log.
type Store struct {
	db *sql.DB
}

// SignalEvent records one flag increment issued by a graph node.
type SignalEvent struct {
	RunToken  string
	Node      string
	FlagIndex int
	Seq       int64
}

// CompletionEvent records one completion channel firing.
type CompletionEvent struct {
	RunToken string
	Channel  string // "value", "stopped", or "error"
	Seq      int64
}

// Open creates or opens a SQLite database at the given path. Harness runs
// pass ":memory:" for per-run isolation.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY when parallel node goroutines record signals.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WriteSignal appends a signal event to the log.
func (s *Store) WriteSignal(ctx context.Context, ev SignalEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (run_token, node, flag_index, seq) VALUES (?, ?, ?, ?)`,
		ev.RunToken, ev.Node, ev.FlagIndex, ev.Seq)
	if err != nil {
		return fmt.Errorf("failed to write signal event: %w", err)
	}
	return nil
}

// WriteCompletion appends a completion event to the log.
func (s *Store) WriteCompletion(ctx context.Context, ev CompletionEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions (run_token, channel, seq) VALUES (?, ?, ?)`,
		ev.RunToken, ev.Channel, ev.Seq)
	if err != nil {
		return fmt.Errorf("failed to write completion event: %w", err)
	}
	return nil
}

// SignalCount returns how many times the given flag index was signaled
// during the run.
func (s *Store) SignalCount(ctx context.Context, runToken string, flagIndex int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE run_token = ? AND flag_index = ?`,
		runToken, flagIndex).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count signals: %w", err)
	}
	return n, nil
}

// CompletionCount returns how many times the given channel fired during the
// run.
func (s *Store) CompletionCount(ctx context.Context, runToken, channel string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE run_token = ? AND channel = ?`,
		runToken, channel).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return n, nil
}

// Query executes a query and returns the resulting rows. Callers are
// responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
