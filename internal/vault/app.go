// Package vault ties the session stores together.
//
// An App owns the local store, the adapter selector, the sync queue and the
// migration controller. Callers go through the App for every read and
// write; it decides which backend serves the call.
//
// While signed out every call goes to the local store. While signed in,
// writes land in the local store first and are queued for the remote
// store; reads reconcile both copies, and listings include sessions whose
// changes have not been flushed yet.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/mschirtzinger/sessionvault/internal/vault/conflict"
	"github.com/mschirtzinger/sessionvault/internal/vault/local"
	"github.com/mschirtzinger/sessionvault/internal/vault/migrate"
	"github.com/mschirtzinger/sessionvault/internal/vault/remote"
	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/selector"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
	"github.com/mschirtzinger/sessionvault/internal/vault/syncqueue"
)

// ErrNotSignedIn is returned by operations that need the remote store.
var ErrNotSignedIn = errors.New("not signed in")

// Config holds configuration for the App.
type Config struct {
	// Sync configures the sync queue. Nil uses syncqueue.DefaultConfig.
	Sync *syncqueue.Config

	// RemoteOptions are passed to remote.New on every sign-in.
	RemoteOptions []remote.Option

	// Logger for application activity
	Logger *log.Logger

	// SelectorLogger and MigrateLogger default to Logger's writer with
	// their own prefixes.
	SelectorLogger *log.Logger
	MigrateLogger  *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sync:   syncqueue.DefaultConfig(),
		Logger: log.New(os.Stderr, "[vault] ", log.LstdFlags),
	}
}

// Status is a point-in-time view of the App, served by the dashboard.
type Status struct {
	Adapter    storage.Kind          `json:"adapter"`
	Generation uint64                `json:"generation"`
	Sync       syncqueue.StatusEvent `json:"sync"`
	Migration  migrate.State         `json:"migration"`
}

// App is the application context for session persistence.
type App struct {
	local    *local.Store
	selector *selector.Selector
	queue    *syncqueue.Queue
	migrator *migrate.Controller
	config   *Config

	mu      sync.Mutex
	onSaved []func(*schema.Session)
}

// New wires an App around an open local store. The App takes ownership of
// the store and closes it in Close.
func New(store *local.Store, config *Config) (*App, error) {
	if store == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[vault] ", log.LstdFlags)
	}
	if config.Sync == nil {
		config.Sync = syncqueue.DefaultConfig()
	}
	if config.SelectorLogger == nil {
		config.SelectorLogger = componentLogger(config.Logger, "selector")
	}
	if config.MigrateLogger == nil {
		config.MigrateLogger = componentLogger(config.Logger, "migrate")
	}

	a := &App{local: store, config: config}

	a.selector = selector.New(store, func(conn *sql.DB) storage.Adapter {
		return remote.New(conn, config.RemoteOptions...)
	}, config.SelectorLogger)

	flush := syncqueue.NewAdapterFlusher(store, a.selector.Handle, config.Sync.Logger)
	queue, err := syncqueue.NewWithConfig(flush, a.selector.Kind, config.Sync)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync queue: %w", err)
	}
	a.queue = queue
	a.migrator = migrate.NewController(store, config.MigrateLogger)

	a.selector.Subscribe(func(h storage.Handle) {
		config.Logger.Printf("Now serving from %s adapter", h.Kind)
	})
	return a, nil
}

func componentLogger(parent *log.Logger, name string) *log.Logger {
	return log.New(parent.Writer(), "["+name+"] ", parent.Flags())
}

// Local returns the embedded store.
func (a *App) Local() *local.Store { return a.local }

// Selector returns the adapter selector.
func (a *App) Selector() *selector.Selector { return a.selector }

// Queue returns the sync queue.
func (a *App) Queue() *syncqueue.Queue { return a.queue }

// Migrator returns the migration controller.
func (a *App) Migrator() *migrate.Controller { return a.migrator }

// OnSessionSaved registers fn to run after each successful SaveSession.
func (a *App) OnSessionSaved(fn func(*schema.Session)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSaved = append(a.onSaved, fn)
}

// SaveSession writes the session to the local store and, while signed in,
// queues it for the remote store. The local stamp is written back onto s.
func (a *App) SaveSession(ctx context.Context, s *schema.Session) (string, error) {
	h := a.selector.Handle()

	id, err := a.local.SaveSession(ctx, s)
	if err != nil {
		return "", err
	}
	if h.IsRemote() {
		if err := a.queue.QueueChange(id, schema.PatchFromSession(s)); err != nil {
			return "", fmt.Errorf("failed to queue change: %w", err)
		}
	}

	a.mu.Lock()
	observers := append([]func(*schema.Session){}, a.onSaved...)
	a.mu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
	return id, nil
}

// GetSession returns the session or nil. While signed in the local and
// remote copies are reconciled.
func (a *App) GetSession(ctx context.Context, id string) (*schema.Session, error) {
	h := a.selector.Handle()
	if !h.IsRemote() {
		return h.Adapter.GetSession(ctx, id)
	}

	remoteCopy, err := h.Adapter.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	localCopy, err := a.local.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, res := conflict.Reconcile(localCopy, remoteCopy)
	if res.HadConflict && localCopy != nil && remoteCopy != nil {
		a.config.Logger.Printf("Session %s differs between stores, using %s", id, res.Winner)
	}
	return sess, nil
}

// GetLatestSession returns the most recent session. While signed in,
// sessions with unflushed changes are considered too.
func (a *App) GetLatestSession(ctx context.Context) (*schema.Session, error) {
	h := a.selector.Handle()
	if !h.IsRemote() {
		return h.Adapter.GetLatestSession(ctx)
	}

	list, err := a.listFrom(ctx, h, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

// ListSessions lists sessions, most recent first. While signed in, the
// remote listing is merged with the local copies of sessions whose changes
// are still queued.
func (a *App) ListSessions(ctx context.Context, limit int) ([]*schema.Session, error) {
	return a.listFrom(ctx, a.selector.Handle(), limit)
}

func (a *App) listFrom(ctx context.Context, h storage.Handle, limit int) ([]*schema.Session, error) {
	list, err := h.Adapter.ListSessions(ctx, limit)
	if err != nil || !h.IsRemote() {
		return list, err
	}

	ids := a.queue.PendingIDs()
	if len(ids) == 0 {
		return list, nil
	}

	index := make(map[string]int, len(list))
	for i, s := range list {
		index[s.ID] = i
	}
	for _, id := range ids {
		localCopy, err := a.local.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if localCopy == nil {
			continue
		}
		if i, ok := index[id]; ok {
			list[i], _ = conflict.Reconcile(localCopy, list[i])
			continue
		}
		index[id] = len(list)
		list = append(list, localCopy)
	}

	sort.SliceStable(list, func(i, j int) bool {
		ti, tj := list[i].UpdatedAt(), list[j].UpdatedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return list[i].ID < list[j].ID
	})
	if n := storage.NormalizeLimit(limit); len(list) > n {
		list = list[:n]
	}
	return list, nil
}

// DeleteSession removes the session from the current adapter. While signed
// in, its queued changes are dropped and the local copy is removed first, so
// no later flush can write it back.
func (a *App) DeleteSession(ctx context.Context, id string) error {
	h := a.selector.Handle()
	if h.IsRemote() {
		a.queue.Discard(id)
		if err := a.local.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("failed to delete local copy: %w", err)
		}
	}
	return h.Adapter.DeleteSession(ctx, id)
}

// SaveDocument saves the document through the current adapter. While signed
// in, queued changes are flushed first when the session has any, so the
// remote store knows the session, and a local copy is kept as well.
func (a *App) SaveDocument(ctx context.Context, sessionID, templateID, content string) (string, error) {
	h := a.selector.Handle()
	if h.IsRemote() {
		if a.queue.HasPending(sessionID) {
			if err := a.queue.FlushPendingChanges(ctx); err != nil {
				return "", fmt.Errorf("failed to sync session %s before its document: %w", sessionID, err)
			}
		}
		if _, err := a.local.SaveDocument(ctx, sessionID, templateID, content); err != nil && !errors.Is(err, schema.ErrInvalid) {
			a.config.Logger.Printf("Local copy of document for %s failed: %v", sessionID, err)
		}
	}
	return h.Adapter.SaveDocument(ctx, sessionID, templateID, content)
}

// GetDocument returns the session's document from the current adapter.
func (a *App) GetDocument(ctx context.Context, sessionID string) (*schema.Document, error) {
	return a.selector.Handle().Adapter.GetDocument(ctx, sessionID)
}

// SignIn binds a remote adapter around conn, creating the remote schema if
// needed, and marks the sync queue online.
func (a *App) SignIn(ctx context.Context, conn *sql.DB) (storage.Handle, error) {
	if conn == nil {
		return a.selector.Handle(), fmt.Errorf("connection cannot be nil")
	}
	if err := remote.New(conn, a.config.RemoteOptions...).EnsureSchema(ctx); err != nil {
		return a.selector.Handle(), err
	}
	h := a.selector.OnAuthChange(selector.AuthState{SignedIn: true, Conn: conn})
	a.queue.SetOnline(true)
	return h, nil
}

// SignOut pushes what it can, then binds the local store. Unflushed changes
// are already in the local store.
func (a *App) SignOut(ctx context.Context) storage.Handle {
	if err := a.queue.FlushPendingChanges(ctx); err != nil {
		a.config.Logger.Printf("Final flush before sign-out failed: %v", err)
	}
	a.queue.SetOnline(false)
	return a.selector.OnAuthChange(selector.AuthState{SignedIn: false})
}

// Migrate copies local sessions to the bound remote store.
func (a *App) Migrate(ctx context.Context, onProgress migrate.ProgressFunc) (*migrate.Result, error) {
	h := a.selector.Handle()
	if !h.IsRemote() {
		return nil, ErrNotSignedIn
	}
	return a.migrator.MigrateToCloud(ctx, h.Adapter, onProgress)
}

// Status returns a snapshot for display.
func (a *App) Status() Status {
	h := a.selector.Handle()
	return Status{
		Adapter:    h.Kind,
		Generation: h.Generation,
		Sync:       a.queue.Snapshot(),
		Migration:  a.migrator.State(),
	}
}

// Close flushes the queue once more and closes the local store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}
	if err := a.local.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
