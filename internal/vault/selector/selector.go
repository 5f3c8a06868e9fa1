// Package selector tracks which storage backend is active.
//
// A Selector is owned by the application context, not a package global.
// Callers capture a storage.Handle once per operation; a swap that happens
// mid-operation does not redirect the operation's remaining calls.
package selector

import (
	"database/sql"
	"log"
	"os"
	"sync"

	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// AuthState is an authentication transition reported by the sign-in
// collaborator.
type AuthState struct {
	SignedIn bool
	// Conn is the live authenticated connection. Nil means no connection,
	// even while signed in.
	Conn *sql.DB
}

// RemoteFactory wraps a live connection in a remote adapter.
type RemoteFactory func(conn *sql.DB) storage.Adapter

// Selector holds the current adapter and its kind.
type Selector struct {
	mu        sync.RWMutex
	handle    storage.Handle
	local     storage.Adapter
	newRemote RemoteFactory
	observers []func(storage.Handle)
	logger    *log.Logger
}

// New returns a Selector bound to local. newRemote is used by OnAuthChange.
func New(local storage.Adapter, newRemote RemoteFactory, logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.New(os.Stderr, "[selector] ", log.LstdFlags)
	}
	return &Selector{
		handle:    storage.Handle{Adapter: local, Kind: local.Kind()},
		local:     local,
		newRemote: newRemote,
		logger:    logger,
	}
}

// Current returns the active adapter.
func (s *Selector) Current() storage.Adapter {
	return s.Handle().Adapter
}

// Kind returns the active adapter's kind.
func (s *Selector) Kind() storage.Kind {
	return s.Handle().Kind
}

// Handle returns the adapter, kind and generation as one snapshot.
func (s *Selector) Handle() storage.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Local returns the embedded adapter regardless of the current binding.
func (s *Selector) Local() storage.Adapter {
	return s.local
}

// Set binds adapter as current. A nil adapter binds local.
func (s *Selector) Set(adapter storage.Adapter) storage.Handle {
	if adapter == nil {
		adapter = s.local
	}

	s.mu.Lock()
	prev := s.handle
	s.handle = storage.Handle{
		Adapter:    adapter,
		Kind:       adapter.Kind(),
		Generation: prev.Generation + 1,
	}
	h := s.handle
	observers := append([]func(storage.Handle){}, s.observers...)
	s.mu.Unlock()

	s.logger.Printf("adapter %s -> %s (generation %d)", prev.Kind, h.Kind, h.Generation)
	for _, fn := range observers {
		fn(h)
	}
	return h
}

// ResetToLocal binds the embedded adapter.
func (s *Selector) ResetToLocal() storage.Handle {
	return s.Set(s.local)
}

// OnAuthChange applies an authentication transition. Signed out, or signed
// in without a connection, binds local. Signed in with a connection binds a
// fresh remote adapter around it.
func (s *Selector) OnAuthChange(state AuthState) storage.Handle {
	if !state.SignedIn || state.Conn == nil || s.newRemote == nil {
		return s.ResetToLocal()
	}
	return s.Set(s.newRemote(state.Conn))
}

// Subscribe registers fn to run after every swap. Observers run on the
// swapping goroutine, outside the selector's lock.
func (s *Selector) Subscribe(fn func(storage.Handle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}
