// Package storage defines the contract every sessionvault backend implements.
package storage

import (
	"context"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

// Kind tags which backend an adapter talks to.
type Kind string

const (
	// KindLocal is the embedded store, available offline.
	KindLocal Kind = "local"
	// KindRemote is the networked store, available only while signed in.
	KindRemote Kind = "remote"
)

// DefaultListLimit bounds ListSessions when the caller passes limit <= 0.
const DefaultListLimit = 20

// Adapter is the uniform storage contract implemented by both backends.
//
// Absence is never an error: lookups return a nil record and a nil error.
// I/O failures are returned as *schema.TransportError, malformed input as
// *schema.ValidationError.
type Adapter interface {
	// Kind reports the backend behind this adapter.
	Kind() Kind

	// SaveSession upserts the session keyed by its ID.
	//
	// The adapter stamps LastUpdatedAt with its own clock, overwriting the
	// caller's value, and writes the stamp back onto s. Per session the stamp
	// never goes backwards within one adapter.
	SaveSession(ctx context.Context, s *schema.Session) (string, error)

	// GetSession returns the session or nil when absent.
	GetSession(ctx context.Context, id string) (*schema.Session, error)

	// GetLatestSession returns the session with the greatest LastUpdatedAt
	// according to this adapter's records, or nil when there are none.
	GetLatestSession(ctx context.Context) (*schema.Session, error)

	// DeleteSession removes the session and its document. Deleting an
	// absent session is not an error.
	DeleteSession(ctx context.Context, id string) error

	// ListSessions returns sessions most recent first, at most limit of them
	// (DefaultListLimit when limit <= 0).
	ListSessions(ctx context.Context, limit int) ([]*schema.Session, error)

	// SaveDocument creates or overwrites the document attached to a session
	// and returns its ID.
	SaveDocument(ctx context.Context, sessionID, templateID, content string) (string, error)

	// GetDocument returns the session's document or nil when absent.
	GetDocument(ctx context.Context, sessionID string) (*schema.Document, error)
}

// Clock returns the current time. Adapters stamp writes with it.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// NormalizeLimit applies DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// NextStamp returns the write timestamp for a session: the clock reading at
// millisecond precision, but never earlier than the previously stored stamp.
func NextStamp(now, previous time.Time) time.Time {
	stamp := schema.Millis(now)
	if !previous.IsZero() && stamp.Before(previous) {
		return schema.Millis(previous)
	}
	return stamp
}

// Handle is a consistent snapshot of the active adapter. Operations capture
// a Handle once and use it throughout, so a concurrent swap never splits a
// single operation across two backends.
type Handle struct {
	Adapter Adapter
	Kind    Kind
	// Generation increases by one on every swap.
	Generation uint64
}

// IsRemote reports whether the handle points at the networked backend.
func (h Handle) IsRemote() bool { return h.Adapter != nil && h.Kind == KindRemote }
