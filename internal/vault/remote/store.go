// Package remote provides the networked session store.
//
// The remote store is reached through a live, authenticated database
// connection supplied by the caller (see package turso). It does not own the
// connection: Close on the connection is the caller's responsibility.
//
// Sessions are split across tables so that each answer is its own row:
//
//	sessions   one row per session
//	responses  one row per (session_id, question_id)
//	documents  at most one row per session
//
// Every failure reaching the network is returned as a *schema.TransportError
// with Backend "remote".
package remote

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

const backend = string(storage.KindRemote)

// Store is the networked implementation of storage.Adapter.
type Store struct {
	conn   *sql.DB
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

// New wraps a live connection. The connection must already be authenticated.
func New(conn *sql.DB, opts ...Option) *Store {
	s := &Store{
		conn:   conn,
		clock:  storage.SystemClock,
		logger: log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements storage.Adapter.
func (s *Store) Kind() storage.Kind { return storage.KindRemote }

// Ping checks that the connection is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return schema.NewTransportError(backend, "ping", err)
	}
	return nil
}

// EnsureSchema creates the remote tables if they don't exist. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			current_stage TEXT NOT NULL DEFAULT '',
			current_question_index INTEGER NOT NULL DEFAULT 0,
			requirements TEXT,
			recommendations TEXT,
			is_complete INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER,
			last_updated_at INTEGER NOT NULL,
			selected_provider TEXT NOT NULL DEFAULT '',
			selected_model TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS responses (
			session_id TEXT NOT NULL,
			question_id TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (session_id, question_id)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			template_id TEXT NOT NULL,
			content TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(last_updated_at)`,
	}

	// Remote endpoints may reject multi-statement Exec, so run them one by one.
	for _, stmt := range statements {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return schema.NewTransportError(backend, "ensure schema", fmt.Errorf("failed to initialize schema: %w", err))
		}
	}
	return nil
}
