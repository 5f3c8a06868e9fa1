package schema

import (
	"time"

	"github.com/google/uuid"
)

// Document is the single generated artifact attached to a session.
type Document struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	TemplateID string    `json:"template_id"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ValidateDocumentInput checks the arguments of a document save.
func ValidateDocumentInput(sessionID, templateID string) error {
	if sessionID == "" {
		return invalid("session_id", "is required")
	}
	if templateID == "" {
		return invalid("template_id", "is required")
	}
	return nil
}

// NewDocumentID returns a fresh document identifier.
func NewDocumentID() string {
	return "doc-" + uuid.NewString()
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Secret is an encrypted API key held only by the local store.
// Secrets are never copied into migration or sync payloads.
type Secret struct {
	Provider      string     `json:"provider"`
	EncryptedBlob string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}
