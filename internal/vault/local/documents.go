package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// SaveDocument implements storage.Adapter.
//
// The document ID is generated on first save and kept on overwrite. Saving a
// document for an unknown session is a validation error.
func (s *Store) SaveDocument(ctx context.Context, sessionID, templateID, content string) (string, error) {
	if err := schema.ValidateDocumentInput(sessionID, templateID); err != nil {
		return "", err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", schema.NewTransportError(backend, "save document", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &schema.ValidationError{Field: "session_id", Reason: fmt.Sprintf("unknown session %q", sessionID)}
	}
	if err != nil {
		return "", schema.NewTransportError(backend, "save document", err)
	}

	var docID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE session_id = ?`, sessionID).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		docID = schema.NewDocumentID()
	} else if err != nil {
		return "", schema.NewTransportError(backend, "save document", err)
	}

	query := `
	INSERT INTO documents (id, session_id, template_id, content, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		template_id = excluded.template_id,
		content = excluded.content,
		updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query, docID, sessionID, templateID, content, storage.MillisOf(s.clock()))
	if err != nil {
		return "", schema.NewTransportError(backend, "save document", fmt.Errorf("failed to upsert document for %s: %w", sessionID, err))
	}

	if err := tx.Commit(); err != nil {
		return "", schema.NewTransportError(backend, "save document", err)
	}
	return docID, nil
}

// GetDocument implements storage.Adapter.
func (s *Store) GetDocument(ctx context.Context, sessionID string) (*schema.Document, error) {
	var doc schema.Document
	var updatedAt int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, session_id, template_id, content, updated_at FROM documents WHERE session_id = ?`,
		sessionID,
	).Scan(&doc.ID, &doc.SessionID, &doc.TemplateID, &doc.Content, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, schema.NewTransportError(backend, "get document", err)
	}
	doc.UpdatedAt = schema.FromMillis(updatedAt)
	return &doc, nil
}
