package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

const sessionColumns = `id, current_stage, current_question_index, requirements,
	recommendations, is_complete, started_at, last_updated_at,
	selected_provider, selected_model`

// SaveSession implements storage.Adapter.
//
// The session row is upserted, then the session's response rows are replaced
// with one row per entry. Everything runs in a single transaction.
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
	startedAt := sess.StartedAt
	if started := storage.TimeFromNull(prevStarted); started != nil {
		startedAt = started
	}

	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		current_stage = excluded.current_stage,
		current_question_index = excluded.current_question_index,
		requirements = excluded.requirements,
		recommendations = excluded.recommendations,
		is_complete = excluded.is_complete,
		started_at = excluded.started_at,
		last_updated_at = excluded.last_updated_at,
		selected_provider = excluded.selected_provider,
		selected_model = excluded.selected_model
	`
	_, err = tx.ExecContext(ctx, query,
		sess.ID,
		sess.CurrentStage,
		sess.CurrentQuestionIndex,
		storage.NullRaw(sess.Requirements),
		storage.NullRaw(sess.Recommendations),
		storage.BoolToInt(sess.IsComplete),
		storage.NullMillis(startedAt),
		storage.MillisOf(stamp),
		sess.SelectedProvider,
		sess.SelectedModel,
	)
	if err != nil {
		return "", schema.NewTransportError(backend, "save session", fmt.Errorf("failed to upsert session %s: %w", sess.ID, err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM responses WHERE session_id = ?`, sess.ID); err != nil {
		return "", schema.NewTransportError(backend, "save session", fmt.Errorf("failed to clear responses for %s: %w", sess.ID, err))
	}
	for questionID, value := range sess.Responses {
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal response %s: %w", questionID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO responses (session_id, question_id, value) VALUES (?, ?, ?)`,
			sess.ID, questionID, string(encoded),
		); err != nil {
			return "", schema.NewTransportError(backend, "save session", fmt.Errorf("failed to write response %s/%s: %w", sess.ID, questionID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return "", schema.NewTransportError(backend, "save session", fmt.Errorf("failed to commit transaction: %w", err))
	}

	sess.LastUpdatedAt = stamp
	sess.StartedAt = startedAt
	return sess.ID, nil
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

	if err := s.loadResponses(ctx, sess); err != nil {
		return nil, schema.NewTransportError(backend, "get session", err)
	}
	return sess, nil
}

func (s *Store) loadResponses(ctx context.Context, sess *schema.Session) error {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT question_id, value FROM responses WHERE session_id = ?`, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to query responses for %s: %w", sess.ID, err)
	}
	defer rows.Close()

	sess.Responses = schema.Responses{}
	for rows.Next() {
		var questionID, raw string
		if err := rows.Scan(&questionID, &raw); err != nil {
			return fmt.Errorf("failed to scan response: %w", err)
		}
		var v schema.ResponseValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("response %s/%s: %w", sess.ID, questionID, err)
		}
		sess.Responses[questionID] = v
	}
	return rows.Err()
}

// sessionStamp is the lightweight row used for client-side ordering.
type sessionStamp struct {
	id      string
	updated int64
}

func (s *Store) listStamps(ctx context.Context) ([]sessionStamp, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, last_updated_at FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var stamps []sessionStamp
	for rows.Next() {
		var st sessionStamp
		if err := rows.Scan(&st.id, &st.updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		stamps = append(stamps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return stamps, nil
}

// GetLatestSession implements storage.Adapter.
//
// The remote store has no "most recent" query, so the session list is
// fetched and the newest entry picked client-side.
func (s *Store) GetLatestSession(ctx context.Context) (*schema.Session, error) {
	stamps, err := s.listStamps(ctx)
	if err != nil {
		return nil, schema.NewTransportError(backend, "get latest session", err)
	}
	if len(stamps) == 0 {
		return nil, nil
	}

	latest := stamps[0]
	for _, st := range stamps[1:] {
		if st.updated > latest.updated || (st.updated == latest.updated && st.id < latest.id) {
			latest = st
		}
	}
	return s.GetSession(ctx, latest.id)
}

// DeleteSession implements storage.Adapter. Responses, document and session
// row are removed together.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewTransportError(backend, "delete session", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM responses WHERE session_id = ?`,
		`DELETE FROM documents WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return schema.NewTransportError(backend, "delete session", fmt.Errorf("failed to delete %s: %w", id, err))
		}
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

	var sessions []*schema.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, schema.NewTransportError(backend, "list sessions", fmt.Errorf("failed to scan session: %w", err))
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, schema.NewTransportError(backend, "list sessions", err)
	}

	// Response rows are fetched after the cursor is closed; some remote
	// drivers allow only one open result set per connection.
	for _, sess := range sessions {
		if err := s.loadResponses(ctx, sess); err != nil {
			return nil, schema.NewTransportError(backend, "list sessions", err)
		}
	}
	if sessions == nil {
		sessions = []*schema.Session{}
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*schema.Session, error) {
	var sess schema.Session
	var requirements, recommendations sql.NullString
	var isComplete int
	var startedAt sql.NullInt64
	var updatedAt int64

	err := row.Scan(
		&sess.ID,
		&sess.CurrentStage,
		&sess.CurrentQuestionIndex,
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

	sess.Requirements = storage.RawFromNull(requirements)
	sess.Recommendations = storage.RawFromNull(recommendations)
	sess.IsComplete = isComplete != 0
	sess.StartedAt = storage.TimeFromNull(startedAt)
	sess.LastUpdatedAt = schema.FromMillis(updatedAt)
	return &sess, nil
}
