package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

const sessionColumns = `id, current_stage, current_question_index, responses,
	requirements, recommendations, is_complete, started_at, last_updated_at,
	selected_provider, selected_model`

const upsertSessionQuery = `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		current_stage = excluded.current_stage,
		current_question_index = excluded.current_question_index,
		responses = excluded.responses,
		requirements = excluded.requirements,
		recommendations = excluded.recommendations,
		is_complete = excluded.is_complete,
		started_at = excluded.started_at,
		last_updated_at = excluded.last_updated_at,
		selected_provider = excluded.selected_provider,
		selected_model = excluded.selected_model
	`

// SaveSession implements storage.Adapter.
//
// The stored StartedAt is kept once set; LastUpdatedAt is stamped from the
// store's clock and never moves backwards for the same ID.
func (s *Store) SaveSession(ctx context.Context, sess *schema.Session) (string, error) {
	if err := sess.Validate(); err != nil {
		return "", err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", schema.NewTransportError(backend, "save session", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var prevUpdated int64
	var prevStarted sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT last_updated_at, started_at FROM sessions WHERE id = ?`, sess.ID,
	).Scan(&prevUpdated, &prevStarted)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", schema.NewTransportError(backend, "save session", err)
	}

	var previous time.Time
	if exists {
		previous = schema.FromMillis(prevUpdated)
	}
	stamp := storage.NextStamp(s.clock(), previous)

	row := sess.Clone()
	row.LastUpdatedAt = stamp
	if started := storage.TimeFromNull(prevStarted); started != nil {
		row.StartedAt = started
	}

	if err := execUpsert(ctx, tx, row); err != nil {
		return "", schema.NewTransportError(backend, "save session", err)
	}

	if err := tx.Commit(); err != nil {
		return "", schema.NewTransportError(backend, "save session", fmt.Errorf("failed to commit transaction: %w", err))
	}

	sess.LastUpdatedAt = row.LastUpdatedAt
	sess.StartedAt = row.StartedAt
	return sess.ID, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execUpsert(ctx context.Context, db execer, sess *schema.Session) error {
	responses, err := storage.EncodeResponses(sess.Responses)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, upsertSessionQuery,
		sess.ID,
		sess.CurrentStage,
		sess.CurrentQuestionIndex,
		responses,
		storage.NullRaw(sess.Requirements),
		storage.NullRaw(sess.Recommendations),
		storage.BoolToInt(sess.IsComplete),
		storage.NullMillis(sess.StartedAt),
		storage.MillisOf(sess.LastUpdatedAt),
		sess.SelectedProvider,
		sess.SelectedModel,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession implements storage.Adapter.
func (s *Store) GetSession(ctx context.Context, id string) (*schema.Session, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, schema.NewTransportError(backend, "get session", err)
	}
	return sess, nil
}

// GetLatestSession implements storage.Adapter.
func (s *Store) GetLatestSession(ctx context.Context) (*schema.Session, error) {
	sessions, err := s.ListSessions(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

// DeleteSession implements storage.Adapter. The document is removed in the
// same transaction.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewTransportError(backend, "delete session", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE session_id = ?`, id); err != nil {
		return schema.NewTransportError(backend, "delete session", fmt.Errorf("failed to delete document for %s: %w", id, err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return schema.NewTransportError(backend, "delete session", fmt.Errorf("failed to delete session %s: %w", id, err))
	}

	if err := tx.Commit(); err != nil {
		return schema.NewTransportError(backend, "delete session", err)
	}
	return nil
}

// ListSessions implements storage.Adapter.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*schema.Session, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY last_updated_at DESC, id ASC LIMIT ?`,
		storage.NormalizeLimit(limit))
	if err != nil {
		return nil, schema.NewTransportError(backend, "list sessions", fmt.Errorf("failed to query sessions: %w", err))
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, schema.NewTransportError(backend, "list sessions", err)
	}
	return sessions, nil
}

// AllSessions returns every stored session, most recent first.
func (s *Store) AllSessions(ctx context.Context) ([]*schema.Session, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY last_updated_at DESC, id ASC`)
	if err != nil {
		return nil, schema.NewTransportError(backend, "list sessions", fmt.Errorf("failed to query sessions: %w", err))
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, schema.NewTransportError(backend, "list sessions", err)
	}
	return sessions, nil
}

// SessionsSince returns sessions updated at or after since, most recent first.
func (s *Store) SessionsSince(ctx context.Context, since time.Time, limit int) ([]*schema.Session, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE last_updated_at >= ?
		 ORDER BY last_updated_at DESC, id ASC LIMIT ?`,
		storage.MillisOf(since), storage.NormalizeLimit(limit))
	if err != nil {
		return nil, schema.NewTransportError(backend, "list sessions", fmt.Errorf("failed to query sessions: %w", err))
	}
	defer rows.Close()

	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, schema.NewTransportError(backend, "list sessions", err)
	}
	return sessions, nil
}

// CountSessions returns the number of stored sessions.
func (s *Store) CountSessions(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, schema.NewTransportError(backend, "count sessions", err)
	}
	return count, nil
}

// SessionTimeRange returns the oldest and newest LastUpdatedAt, or nils when
// the store is empty.
func (s *Store) SessionTimeRange(ctx context.Context) (oldest, newest *time.Time, err error) {
	var lo, hi sql.NullInt64
	err = s.conn.QueryRowContext(ctx,
		`SELECT MIN(last_updated_at), MAX(last_updated_at) FROM sessions`,
	).Scan(&lo, &hi)
	if err != nil {
		return nil, nil, schema.NewTransportError(backend, "session time range", err)
	}
	return storage.TimeFromNull(lo), storage.TimeFromNull(hi), nil
}

// ClearSessions deletes every session and document. Secrets are kept.
func (s *Store) ClearSessions(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewTransportError(backend, "clear sessions", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return schema.NewTransportError(backend, "clear sessions", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return schema.NewTransportError(backend, "clear sessions", err)
	}

	if err := tx.Commit(); err != nil {
		return schema.NewTransportError(backend, "clear sessions", err)
	}
	s.logger.Printf("Cleared all local sessions")
	return nil
}

// ImportSessions writes snapshots verbatim, keeping their LastUpdatedAt.
//
// This is the restore path for backups; regular writes must go through
// SaveSession so the adapter clock stamps them.
func (s *Store) ImportSessions(ctx context.Context, sessions []*schema.Session) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewTransportError(backend, "import sessions", err)
	}
	defer tx.Rollback()

	for _, sess := range sessions {
		if err := sess.Validate(); err != nil {
			return fmt.Errorf("session %q: %w", sess.ID, err)
		}
		row := sess.Clone()
		if row.LastUpdatedAt.IsZero() {
			row.LastUpdatedAt = schema.Millis(s.clock())
		}
		if err := execUpsert(ctx, tx, row); err != nil {
			return schema.NewTransportError(backend, "import sessions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return schema.NewTransportError(backend, "import sessions", err)
	}
	s.logger.Printf("Imported %d sessions", len(sessions))
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSession reads one row selected with sessionColumns.
func scanSession(row scanner) (*schema.Session, error) {
	var sess schema.Session
	var responses string
	var requirements, recommendations sql.NullString
	var isComplete int
	var startedAt sql.NullInt64
	var updatedAt int64

	err := row.Scan(
		&sess.ID,
		&sess.CurrentStage,
		&sess.CurrentQuestionIndex,
		&responses,
		&requirements,
		&recommendations,
		&isComplete,
		&startedAt,
		&updatedAt,
		&sess.SelectedProvider,
		&sess.SelectedModel,
	)
	if err != nil {
		return nil, err
	}

	sess.Responses, err = storage.DecodeResponses(responses)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	sess.Requirements = storage.RawFromNull(requirements)
	sess.Recommendations = storage.RawFromNull(recommendations)
	sess.IsComplete = isComplete != 0
	sess.StartedAt = storage.TimeFromNull(startedAt)
	sess.LastUpdatedAt = schema.FromMillis(updatedAt)

	return &sess, nil
}

// scanSessions is a helper function to scan multiple sessions from query results.
func scanSessions(rows *sql.Rows) ([]*schema.Session, error) {
	sessions := []*schema.Session{}

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}
