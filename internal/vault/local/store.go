// Package local provides the embedded session store.
//
// The local store is an embedded SQLite database opened through
// ncruces/go-sqlite3 (a WASM build of SQLite, no cgo). It is always
// available, with or without network or authentication:
//
//   - Database file: <data_dir>/sessions.db
//   - WAL mode: concurrent readers during writes
//   - Schema: sessions, documents, api_keys
//
// While signed out it is the only backend. While signed in it acts as the
// write-ahead buffer that feeds the sync queue.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

const backend = string(storage.KindLocal)

// Store is the embedded implementation of storage.Adapter.
type Store struct {
	conn   *sql.DB
	path   string
	clock  storage.Clock
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp LastUpdatedAt.
func WithClock(clock storage.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger for store activity.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

var _ storage.Adapter = (*Store)(nil)

// Open opens (creating if needed) the store at path and initializes the
// schema.
//
// The caller MUST call Close() when done to ensure the WAL is checkpointed.
//
// Example:
//
//	store, err := local.Open(filepath.Join(dataDir, "sessions.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		clock:  storage.SystemClock,
		logger: log.New(os.Stderr, "[local] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.InitSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Kind implements storage.Adapter.
func (s *Store) Kind() storage.Kind { return storage.KindLocal }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB { return s.conn }

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the schema if it doesn't exist. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		current_stage TEXT NOT NULL DEFAULT '',
		current_question_index INTEGER NOT NULL DEFAULT 0,
		responses TEXT NOT NULL DEFAULT '{}',  -- JSON object
		requirements TEXT,                     -- opaque JSON
		recommendations TEXT,                  -- opaque JSON
		is_complete INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER,                    -- unix ms
		last_updated_at INTEGER NOT NULL,      -- unix ms, adapter clock
		selected_provider TEXT NOT NULL DEFAULT '',
		selected_model TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		template_id TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		provider TEXT PRIMARY KEY,
		encrypted_blob TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(last_updated_at DESC);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
