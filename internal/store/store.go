// Package store is the durable record store for tally.
//
// Archive, Preferences, and ChangeLog live in SQLite; every operation runs
// in its own transaction, so a multi-record import is not atomic. The
// CurrentState draft lives in a separate, simpler slot (a JSON file on disk
// or memory in tests).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sadopc/tally/internal/clock"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// Store is an explicit handle; nothing in tally keeps a global one.
type Store struct {
	path  string
	clock clock.Clock
	slot  Slot

	mu sync.Mutex
	db *sql.DB
}

// New returns a store backed by the SQLite database at dbPath and a
// current-state file next to it. The database is opened lazily on the
// first collection access.
func New(dbPath string, c clock.Clock) *Store {
	return &Store{
		path:  dbPath,
		clock: c,
		slot:  NewFileSlot(filepath.Join(filepath.Dir(dbPath), "current_state.json")),
	}
}

// NewMemory creates an in-memory store for testing.
func NewMemory(c clock.Clock) *Store {
	return &Store{path: ":memory:", clock: c, slot: NewMemorySlot()}
}

// WithSlot replaces the current-state slot.
func (s *Store) WithSlot(slot Slot) *Store {
	s.slot = slot
	return s
}

// Clock returns the clock the store stamps records with.
func (s *Store) Clock() clock.Clock { return s.clock }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping forces the database open.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// conn returns the open database, opening it if needed. A failed open is
// retried once before StoreUnavailable is returned; the next call starts
// over.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		var db *sql.DB
		db, err = open(ctx, s.path)
		if err == nil {
			s.db = db
			return db, nil
		}
		slog.Warn("store open failed", "path", s.path, "attempt", attempt, "error", err)
	}
	return nil, &StoreError{Code: ErrCodeUnavailable, Op: "open", Err: err}
}

func open(ctx context.Context, dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Configure pragmas.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := migrateV1(ctx, db); err != nil {
			return err
		}
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func migrateV1(ctx context.Context, db *sql.DB) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS archive (
		period_start    TEXT PRIMARY KEY,
		id              TEXT NOT NULL,
		schema_version  INTEGER NOT NULL,
		payload         TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		name        TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS change_log (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp    TEXT NOT NULL,
		record_type  TEXT NOT NULL,
		operation    TEXT NOT NULL,
		record_id    TEXT NOT NULL DEFAULT '',
		payload      TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_change_log_record ON change_log(record_type, record_id);
	`
	_, err := db.ExecContext(ctx, ddl)
	return err
}

// withTx runs fn inside a single transaction. Any failure is reported as a
// TransactionError scoped to op.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Code: ErrCodeTransaction, Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return &StoreError{Code: ErrCodeTransaction, Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Code: ErrCodeTransaction, Op: op, Err: err}
	}
	return nil
}
