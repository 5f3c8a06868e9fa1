// Package auth turns changes to the credentials file into sign-in and
// sign-out transitions.
//
// The sign-in flow itself lives elsewhere; it writes the credentials file
// on success and removes it on sign-out. Watcher observes the file's
// directory with fsnotify and reports each effective change once.
package auth

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mschirtzinger/sessionvault/internal/vault/turso"
)

// EventKind is the direction of an authentication transition.
type EventKind int

const (
	// SignedOut means no usable credentials are present.
	SignedOut EventKind = iota
	// SignedIn means credentials are present and parse.
	SignedIn
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case SignedOut:
		return "signed-out"
	case SignedIn:
		return "signed-in"
	default:
		return "unknown"
	}
}

// Event is one authentication transition.
type Event struct {
	Kind        EventKind
	Credentials turso.Credentials
}

// Watcher watches a credentials file for changes.
type Watcher struct {
	path    string
	logger  *log.Logger
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	last    *Event
}

// NewWatcher creates a Watcher for the credentials file at path.
// The watcher must be started with Start() before it will emit events.
func NewWatcher(path string, logger *log.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("credentials path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials path: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:    abs,
		logger:  logger,
		watcher: fw,
		events:  make(chan Event, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Path returns the watched credentials file.
func (w *Watcher) Path() string { return w.path }

// Current reads the credentials file now and returns the matching event.
// It also becomes the baseline for de-duplicating later events.
func (w *Watcher) Current() (Event, error) {
	ev, err := w.read()
	if err != nil {
		return Event{Kind: SignedOut}, err
	}
	w.mu.Lock()
	w.last = &ev
	w.mu.Unlock()
	return ev, nil
}

// Start begins watching. The credentials directory is created if missing.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch credentials directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and closes the Events and Errors channels.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of transitions.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of watch and parse errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			ev, err := w.read()
			if err != nil {
				w.logger.Printf("Ignoring unreadable credentials: %v", err)
				select {
				case w.errors <- err:
				case <-w.done:
					return
				}
				continue
			}
			if !w.changed(ev) {
				continue
			}

			w.logger.Printf("Credentials %s", ev.Kind)
			select {
			case w.events <- ev:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// relevant filters to create, write, remove and rename of the credentials
// file itself. Chmod and sibling files are ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != w.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func (w *Watcher) read() (Event, error) {
	creds, err := turso.ReadCredentials(w.path)
	if errors.Is(err, turso.ErrNoCredentials) {
		return Event{Kind: SignedOut}, nil
	}
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: SignedIn, Credentials: creds}, nil
}

// changed records ev and reports whether it differs from the last event.
func (w *Watcher) changed(ev Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last != nil && *w.last == ev {
		return false
	}
	w.last = &ev
	return true
}
