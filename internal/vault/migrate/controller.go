// Package migrate copies sessions from the local store to a remote store
// when a user signs in for the first time.
//
// Migration is one-shot and sequential. It never overwrites a session that
// already exists remotely, and a failure on one session never stops the
// rest. The outcome is a structured Result rather than an error.
//
// Lifecycle:
//
//	idle -> detecting -> migrating -> verifying -> (complete | error)
//
// Secrets are never read by this package.
package migrate

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// State is a migration lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateDetecting State = "detecting"
	StateMigrating State = "migrating"
	StateVerifying State = "verifying"
	StateComplete  State = "complete"
	StateError     State = "error"
)

// LocalStore is the part of the embedded store migration needs.
type LocalStore interface {
	storage.Adapter
	AllSessions(ctx context.Context) ([]*schema.Session, error)
	CountSessions(ctx context.Context) (int, error)
	SessionTimeRange(ctx context.Context) (oldest, newest *time.Time, err error)
	HasSecrets(ctx context.Context) (bool, error)
	ClearSessions(ctx context.Context) error
	ImportSessions(ctx context.Context, sessions []*schema.Session) error
}

// Detection summarizes local data, used to decide whether to offer a
// migration at all.
type Detection struct {
	SessionCount  int        `json:"session_count"`
	HasSecrets    bool       `json:"has_secrets"`
	OldestSession *time.Time `json:"oldest_session,omitempty"`
	NewestSession *time.Time `json:"newest_session,omitempty"`
}

// Progress is pushed to the caller at each lifecycle transition and after
// each session. Completed never decreases within one run.
type Progress struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Current   string `json:"current,omitempty"`
	Status    State  `json:"status"`
}

// ProgressFunc receives progress updates. It runs on the migrating
// goroutine and should return quickly.
type ProgressFunc func(Progress)

// Result contains statistics about the migration.
type Result struct {
	Success       bool     `json:"success"`
	MigratedCount int      `json:"migrated_count"`
	SkippedCount  int      `json:"skipped_count"`
	Errors        []string `json:"errors"`
	// Missing lists local session IDs absent from remote after the
	// verification pass.
	Missing []string `json:"missing,omitempty"`
}

// Controller runs migrations from one local store.
type Controller struct {
	local  LocalStore
	logger *log.Logger

	mu    sync.Mutex
	state State
}

// NewController returns a Controller in state idle.
func NewController(local LocalStore, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}
	return &Controller{local: local, logger: logger, state: StateIdle}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// DetectLocalData scans the local store. With no sessions the controller
// goes straight to complete: there is nothing to migrate.
func (c *Controller) DetectLocalData(ctx context.Context) (*Detection, error) {
	c.setState(StateDetecting)

	count, err := c.local.CountSessions(ctx)
	if err != nil {
		c.setState(StateError)
		return nil, fmt.Errorf("failed to count local sessions: %w", err)
	}
	hasSecrets, err := c.local.HasSecrets(ctx)
	if err != nil {
		c.setState(StateError)
		return nil, fmt.Errorf("failed to check local secrets: %w", err)
	}

	d := &Detection{SessionCount: count, HasSecrets: hasSecrets}
	if count > 0 {
		d.OldestSession, d.NewestSession, err = c.local.SessionTimeRange(ctx)
		if err != nil {
			c.setState(StateError)
			return nil, fmt.Errorf("failed to read session time range: %w", err)
		}
		c.setState(StateIdle)
	} else {
		c.setState(StateComplete)
	}
	return d, nil
}

// MigrateToCloud copies every local session missing from remote, then
// verifies each local ID is present remotely.
//
// Only a failure to enumerate local sessions is returned as an error.
// Per-session failures are collected in Result.Errors.
func (c *Controller) MigrateToCloud(ctx context.Context, remote storage.Adapter, onProgress ProgressFunc) (*Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	result := &Result{Errors: []string{}}

	c.setState(StateDetecting)
	onProgress(Progress{Status: StateDetecting})

	sessions, err := c.local.AllSessions(ctx)
	if err != nil {
		c.setState(StateError)
		onProgress(Progress{Status: StateError})
		return nil, fmt.Errorf("failed to read local sessions: %w", err)
	}

	total := len(sessions)
	if total == 0 {
		c.setState(StateComplete)
		result.Success = true
		onProgress(Progress{Status: StateComplete})
		return result, nil
	}

	c.setState(StateMigrating)
	onProgress(Progress{Total: total, Status: StateMigrating})

	for i, sess := range sessions {
		if err := c.migrateOne(ctx, remote, sess, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("session %s: %v", sess.ID, err))
			c.logger.Printf("session %s failed: %v", sess.ID, err)
		}
		onProgress(Progress{Total: total, Completed: i + 1, Current: sess.ID, Status: StateMigrating})
	}

	c.setState(StateVerifying)
	onProgress(Progress{Total: total, Completed: total, Status: StateVerifying})

	for _, sess := range sessions {
		got, err := remote.GetSession(ctx, sess.ID)
		if err != nil || got == nil {
			result.Missing = append(result.Missing, sess.ID)
		}
	}

	result.Success = len(result.Errors) == 0 && len(result.Missing) == 0
	final := StateComplete
	if !result.Success {
		final = StateError
	}
	c.setState(final)
	onProgress(Progress{Total: total, Completed: total, Status: final})

	c.logger.Printf("migrated %d, skipped %d, %d errors, %d missing",
		result.MigratedCount, result.SkippedCount, len(result.Errors), len(result.Missing))
	return result, nil
}

func (c *Controller) migrateOne(ctx context.Context, remote storage.Adapter, sess *schema.Session, result *Result) error {
	existing, err := remote.GetSession(ctx, sess.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		result.SkippedCount++
		return nil
	}

	// The remote adapter restamps LastUpdatedAt; send a copy so the local
	// snapshot keeps its own stamp.
	if _, err := remote.SaveSession(ctx, sess.Clone()); err != nil {
		return err
	}
	result.MigratedCount++

	doc, err := c.local.GetDocument(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if doc != nil {
		if _, err := remote.SaveDocument(ctx, sess.ID, doc.TemplateID, doc.Content); err != nil {
			return fmt.Errorf("document: %w", err)
		}
	}
	return nil
}
