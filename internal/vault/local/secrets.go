package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// Secrets live only in the local store. Nothing in this file is reachable
// from migration or sync.

// SaveSecret stores an already-encrypted blob for provider. CreatedAt is kept
// on overwrite.
func (s *Store) SaveSecret(ctx context.Context, provider, encryptedBlob string) error {
	if provider == "" {
		return &schema.ValidationError{Field: "provider", Reason: "is required"}
	}
	if encryptedBlob == "" {
		return &schema.ValidationError{Field: "encrypted_blob", Reason: "is required"}
	}

	query := `
	INSERT INTO api_keys (provider, encrypted_blob, created_at, last_used_at)
	VALUES (?, ?, ?, NULL)
	ON CONFLICT(provider) DO UPDATE SET
		encrypted_blob = excluded.encrypted_blob
	`
	if _, err := s.conn.ExecContext(ctx, query, provider, encryptedBlob, storage.MillisOf(s.clock())); err != nil {
		return schema.NewTransportError(backend, "save secret", fmt.Errorf("failed to upsert key for %s: %w", provider, err))
	}
	return nil
}

// GetSecret returns the secret for provider and touches its LastUsedAt.
// Returns nil when no secret is stored.
func (s *Store) GetSecret(ctx context.Context, provider string) (*schema.Secret, error) {
	now := schema.Millis(s.clock())

	res, err := s.conn.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE provider = ?`,
		storage.MillisOf(now), provider)
	if err != nil {
		return nil, schema.NewTransportError(backend, "get secret", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	sec, err := s.readSecret(ctx, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, schema.NewTransportError(backend, "get secret", err)
	}
	return sec, nil
}

func (s *Store) readSecret(ctx context.Context, provider string) (*schema.Secret, error) {
	var sec schema.Secret
	var created int64
	var lastUsed sql.NullInt64
	err := s.conn.QueryRowContext(ctx,
		`SELECT provider, encrypted_blob, created_at, last_used_at FROM api_keys WHERE provider = ?`,
		provider,
	).Scan(&sec.Provider, &sec.EncryptedBlob, &created, &lastUsed)
	if err != nil {
		return nil, err
	}
	sec.CreatedAt = schema.FromMillis(created)
	sec.LastUsedAt = storage.TimeFromNull(lastUsed)
	return &sec, nil
}

// ListSecrets returns stored secrets ordered by provider, without touching
// LastUsedAt.
func (s *Store) ListSecrets(ctx context.Context) ([]*schema.Secret, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT provider, encrypted_blob, created_at, last_used_at FROM api_keys ORDER BY provider`)
	if err != nil {
		return nil, schema.NewTransportError(backend, "list secrets", err)
	}
	defer rows.Close()

	var secrets []*schema.Secret
	for rows.Next() {
		var sec schema.Secret
		var created int64
		var lastUsed sql.NullInt64
		if err := rows.Scan(&sec.Provider, &sec.EncryptedBlob, &created, &lastUsed); err != nil {
			return nil, schema.NewTransportError(backend, "list secrets", err)
		}
		sec.CreatedAt = schema.FromMillis(created)
		sec.LastUsedAt = storage.TimeFromNull(lastUsed)
		secrets = append(secrets, &sec)
	}
	if err := rows.Err(); err != nil {
		return nil, schema.NewTransportError(backend, "list secrets", err)
	}
	return secrets, nil
}

// ClearSecret removes the secret for provider. Idempotent.
func (s *Store) ClearSecret(ctx context.Context, provider string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM api_keys WHERE provider = ?`, provider); err != nil {
		return schema.NewTransportError(backend, "clear secret", err)
	}
	return nil
}

// HasSecrets reports whether any secret is stored.
func (s *Store) HasSecrets(ctx context.Context) (bool, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&count); err != nil {
		return false, schema.NewTransportError(backend, "has secrets", err)
	}
	return count > 0, nil
}
