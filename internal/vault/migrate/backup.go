package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

// Backup is a point-in-time snapshot of local sessions and their documents.
// It never contains secrets.
type Backup struct {
	CreatedAt time.Time          `json:"created_at"`
	Sessions  []*schema.Session  `json:"sessions"`
	Documents []*schema.Document `json:"documents,omitempty"`
}

// GetLocalSessionBackup snapshots every local session and document.
func (c *Controller) GetLocalSessionBackup(ctx context.Context) (*Backup, error) {
	sessions, err := c.local.AllSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read local sessions: %w", err)
	}

	b := &Backup{CreatedAt: time.Now().UTC(), Sessions: sessions}
	for _, sess := range sessions {
		doc, err := c.local.GetDocument(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read document for %s: %w", sess.ID, err)
		}
		if doc != nil {
			b.Documents = append(b.Documents, doc)
		}
	}
	return b, nil
}

// RestoreLocalSessions writes a backup back into the local store. Sessions
// keep their recorded LastUpdatedAt. Existing sessions with the same IDs are
// overwritten.
func (c *Controller) RestoreLocalSessions(ctx context.Context, b *Backup) error {
	if b == nil {
		return errors.New("no backup to restore")
	}
	if err := c.local.ImportSessions(ctx, b.Sessions); err != nil {
		return fmt.Errorf("failed to restore sessions: %w", err)
	}
	for _, doc := range b.Documents {
		if _, err := c.local.SaveDocument(ctx, doc.SessionID, doc.TemplateID, doc.Content); err != nil {
			return fmt.Errorf("failed to restore document for %s: %w", doc.SessionID, err)
		}
	}
	c.logger.Printf("Restored %d sessions and %d documents", len(b.Sessions), len(b.Documents))
	return nil
}

// ClearLocalSessionsAfterMigration deletes every local session and document.
// Callers take a backup first; the controller does not enforce it.
func (c *Controller) ClearLocalSessionsAfterMigration(ctx context.Context) error {
	if err := c.local.ClearSessions(ctx); err != nil {
		return fmt.Errorf("failed to clear local sessions: %w", err)
	}
	return nil
}

// backupRecord is one JSONL line. Exactly one of Session or Document is set.
type backupRecord struct {
	Type      string           `json:"type"`
	CreatedAt *time.Time       `json:"created_at,omitempty"`
	Session   *schema.Session  `json:"session,omitempty"`
	Document  *schema.Document `json:"document,omitempty"`
}

const (
	recordHeader   = "header"
	recordSession  = "session"
	recordDocument = "document"
)

// WriteBackupFile writes b as JSONL: a header line, then one line per
// session, then one per document. The file is written atomically with
// owner-only permissions.
func WriteBackupFile(path string, b *Backup) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := encodeBackup(f, b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func encodeBackup(w io.Writer, b *Backup) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	created := b.CreatedAt
	if err := enc.Encode(backupRecord{Type: recordHeader, CreatedAt: &created}); err != nil {
		return fmt.Errorf("failed to write backup header: %w", err)
	}
	for _, sess := range b.Sessions {
		if err := enc.Encode(backupRecord{Type: recordSession, Session: sess}); err != nil {
			return fmt.Errorf("failed to write session %s: %w", sess.ID, err)
		}
	}
	for _, doc := range b.Documents {
		if err := enc.Encode(backupRecord{Type: recordDocument, Document: doc}); err != nil {
			return fmt.Errorf("failed to write document for %s: %w", doc.SessionID, err)
		}
	}
	return bw.Flush()
}

// ReadBackupFile parses a file written by WriteBackupFile.
func ReadBackupFile(path string) (*Backup, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	b := &Backup{}
	decoder := json.NewDecoder(file)
	lineNum := 0
	for {
		var rec backupRecord
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		switch rec.Type {
		case recordHeader:
			if rec.CreatedAt != nil {
				b.CreatedAt = *rec.CreatedAt
			}
		case recordSession:
			if rec.Session == nil {
				return nil, fmt.Errorf("line %d: session record without session", lineNum)
			}
			b.Sessions = append(b.Sessions, rec.Session)
		case recordDocument:
			if rec.Document == nil {
				return nil, fmt.Errorf("line %d: document record without document", lineNum)
			}
			b.Documents = append(b.Documents, rec.Document)
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", lineNum, rec.Type)
		}
	}
	return b, nil
}
