// Package syncqueue pushes local session changes to the remote store.
//
// Changes are buffered and flushed after a quiet period: every new change
// restarts the timer, so a steady stream of edits defers the flush until
// input pauses. A failed flush puts its batch back at the head of the
// buffer and retries after BaseRetryDelay*attempt, up to MaxRetries. After
// that the queue reports StatusError and keeps the data for the next
// attempt. A flush rejected as invalid (schema.ErrInvalid) is not retried:
// the queue goes straight to StatusError, still holding the data. Buffered
// changes are only dropped through Discard.
//
// Internal phases:
//
//	idle -> debouncing -> flushing -> (idle | backoff -> flushing)
//
// The externally visible Status is for display only.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// Status is the user-visible sync state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

type phase int

const (
	phaseIdle phase = iota
	phaseDebouncing
	phaseFlushing
	phaseBackoff
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseDebouncing:
		return "debouncing"
	case phaseFlushing:
		return "flushing"
	case phaseBackoff:
		return "backoff"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Change is one buffered session mutation.
type Change struct {
	SessionID string       `json:"session_id"`
	Timestamp time.Time    `json:"timestamp"`
	Data      schema.Patch `json:"data"`
}

// FlushFunc persists a batch. Changes arrive in the order they were queued.
type FlushFunc func(ctx context.Context, batch []Change) error

// StatusEvent is delivered to subscribers on every status change.
type StatusEvent struct {
	Status   Status    `json:"status"`
	Pending  int       `json:"pending"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Config holds configuration for the queue.
type Config struct {
	// QuietPeriod is how long input must pause before a flush.
	QuietPeriod time.Duration

	// BaseRetryDelay is multiplied by the attempt number between retries.
	BaseRetryDelay time.Duration

	// MaxRetries bounds retries of one failing batch.
	MaxRetries int

	// Clock schedules timers. Defaults to RealClock.
	Clock Clock

	// Logger for queue activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		QuietPeriod:    time.Second,
		BaseRetryDelay: time.Second,
		MaxRetries:     3,
		Clock:          RealClock,
		Logger:         log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("sync queue closed")

// Queue buffers changes and flushes them to the remote store.
type Queue struct {
	flush  FlushFunc
	kind   func() storage.Kind
	config *Config

	mu        sync.Mutex
	pending   []Change
	phase     phase
	status    Status
	lastErr   string
	attempts  int
	online    bool
	closed    bool
	timer     Timer
	timerSeq  uint64
	observers []func(StatusEvent)
	outbox    []StatusEvent

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a queue. kind reports the selector's current adapter kind;
// flushes only run while it is storage.KindRemote. The queue starts online.
func New(flush FlushFunc, kind func() storage.Kind) (*Queue, error) {
	return NewWithConfig(flush, kind, DefaultConfig())
}

// NewWithConfig creates a queue with custom configuration.
func NewWithConfig(flush FlushFunc, kind func() storage.Kind, config *Config) (*Queue, error) {
	if flush == nil {
		return nil, fmt.Errorf("flush cannot be nil")
	}
	if kind == nil {
		return nil, fmt.Errorf("kind cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.QuietPeriod <= 0 {
		return nil, fmt.Errorf("quiet period must be positive")
	}
	if config.BaseRetryDelay <= 0 {
		return nil, fmt.Errorf("base retry delay must be positive")
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative")
	}
	if config.Clock == nil {
		config.Clock = RealClock
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		flush:  flush,
		kind:   kind,
		config: config,
		status: StatusIdle,
		online: true,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// QueueChange buffers a change. Offline, the change is kept and no flush is
// scheduled. Online, the quiet-period timer restarts.
func (q *Queue) QueueChange(sessionID string, patch schema.Patch) error {
	if sessionID == "" {
		return &schema.ValidationError{Field: "session_id", Reason: "is required"}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, Change{
		SessionID: sessionID,
		Timestamp: q.config.Clock.Now(),
		Data:      patch,
	})

	switch {
	case !q.online:
		q.setStatusLocked(StatusOffline)
	case q.phase == phaseFlushing:
		// The running flush reschedules when it sees new changes.
	default:
		q.transitionLocked(phaseDebouncing, q.config.QuietPeriod)
		q.setStatusLocked(StatusPending)
	}
	q.unlockAndNotify()
	return nil
}

// FlushPendingChanges sends everything buffered in one batch. It is a no-op
// when nothing is buffered, the queue is offline, a flush is already
// running, or the current adapter is not remote.
func (q *Queue) FlushPendingChanges(ctx context.Context) error {
	remote := q.kind() == storage.KindRemote

	q.mu.Lock()
	if len(q.pending) == 0 || !remote || !q.online || q.phase == phaseFlushing {
		q.mu.Unlock()
		return nil
	}

	q.stopTimerLocked()
	batch := q.pending
	q.pending = nil
	q.phase = phaseFlushing
	q.setStatusLocked(StatusSyncing)
	q.unlockAndNotify()

	err := q.flush(ctx, batch)

	q.mu.Lock()
	q.phase = phaseIdle
	if err == nil {
		q.attempts = 0
		q.lastErr = ""
		switch {
		case len(q.pending) > 0 && q.online && !q.closed:
			q.transitionLocked(phaseDebouncing, q.config.QuietPeriod)
			q.setStatusLocked(StatusPending)
		case !q.online:
			q.setStatusLocked(StatusOffline)
		default:
			q.setStatusLocked(StatusSynced)
		}
		q.unlockAndNotify()
		q.config.Logger.Printf("Flushed %d changes", len(batch))
		return nil
	}

	// Put the failed batch back ahead of anything queued meanwhile.
	q.pending = append(batch, q.pending...)
	q.attempts++
	q.lastErr = err.Error()

	switch {
	case !q.online || q.closed:
		q.setStatusLocked(StatusOffline)
	case errors.Is(err, schema.ErrInvalid):
		q.config.Logger.Printf("Flush rejected, not retrying: %v", err)
		q.attempts = 0
		q.setStatusLocked(StatusError)
	case q.attempts <= q.config.MaxRetries:
		delay := q.config.BaseRetryDelay * time.Duration(q.attempts)
		q.transitionLocked(phaseBackoff, delay)
		q.setStatusLocked(StatusPending)
		q.config.Logger.Printf("Flush failed (attempt %d/%d), retrying in %v: %v",
			q.attempts, q.config.MaxRetries, delay, err)
	default:
		q.config.Logger.Printf("Flush failed after %d attempts, giving up: %v", q.attempts, err)
		q.attempts = 0
		q.setStatusLocked(StatusError)
	}
	q.unlockAndNotify()
	return err
}

// SetOnline records a connectivity change. Going online flushes at once if
// anything is buffered; going offline cancels any scheduled flush.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.online = online

	if !online {
		q.stopTimerLocked()
		if q.phase != phaseFlushing {
			q.phase = phaseIdle
		}
		q.setStatusLocked(StatusOffline)
		q.unlockAndNotify()
		return
	}

	if len(q.pending) == 0 {
		q.setStatusLocked(StatusSynced)
		q.unlockAndNotify()
		return
	}
	q.setStatusLocked(StatusPending)
	q.unlockAndNotify()

	if err := q.FlushPendingChanges(q.ctx); err != nil {
		q.config.Logger.Printf("Flush on reconnect failed: %v", err)
	}
}

// Discard drops every buffered change for sessionID and returns how many
// were removed. A batch already handed to the flush function is not
// affected.
func (q *Queue) Discard(sessionID string) int {
	q.mu.Lock()
	kept := q.pending[:0]
	for _, c := range q.pending {
		if c.SessionID != sessionID {
			kept = append(kept, c)
		}
	}
	removed := len(q.pending) - len(kept)
	q.pending = kept
	if removed == 0 {
		q.mu.Unlock()
		return 0
	}

	if len(q.pending) == 0 && q.phase != phaseFlushing {
		q.stopTimerLocked()
		q.phase = phaseIdle
		q.attempts = 0
		q.lastErr = ""
		if q.online {
			q.setStatusLocked(StatusSynced)
		} else {
			q.setStatusLocked(StatusOffline)
		}
	}
	q.unlockAndNotify()
	return removed
}

// PendingIDs returns the distinct session IDs with buffered changes, in
// first-queued order.
func (q *Queue) PendingIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]bool, len(q.pending))
	var ids []string
	for _, c := range q.pending {
		if !seen[c.SessionID] {
			seen[c.SessionID] = true
			ids = append(ids, c.SessionID)
		}
	}
	return ids
}

// HasPending reports whether sessionID has buffered changes.
func (q *Queue) HasPending(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.pending {
		if c.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Status returns the current status.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// LastError returns the message of the most recent failed flush, or "" once
// a flush succeeds.
func (q *Queue) LastError() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Pending returns the number of buffered changes.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Attempts returns the retry counter of the current failing batch.
func (q *Queue) Attempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attempts
}

// Snapshot returns the current state as an event.
func (q *Queue) Snapshot() StatusEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.eventLocked()
}

// Subscribe registers fn for status changes. Callbacks run outside the
// queue's lock, on whichever goroutine caused the change.
func (q *Queue) Subscribe(fn func(StatusEvent)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, fn)
}

// Close stops timers and makes one last flush attempt with ctx. Buffered
// changes that fail to flush stay in memory only; callers that need them
// durable write through the local store first.
func (q *Queue) Close(ctx context.Context) error {
	err := q.FlushPendingChanges(ctx)

	q.mu.Lock()
	q.closed = true
	q.stopTimerLocked()
	q.phase = phaseIdle
	q.mu.Unlock()

	q.cancel()
	return err
}

// transitionLocked moves to phase p and (re)arms the single timer.
func (q *Queue) transitionLocked(p phase, after time.Duration) {
	q.stopTimerLocked()
	q.phase = p
	q.timerSeq++
	seq := q.timerSeq
	q.timer = q.config.Clock.AfterFunc(after, func() { q.fire(seq) })
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.timerSeq++
}

// fire runs when a debounce or backoff timer expires. Stale timers are
// ignored.
func (q *Queue) fire(seq uint64) {
	q.mu.Lock()
	if seq != q.timerSeq || q.closed {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	q.mu.Unlock()

	// Failures are recorded in the queue's status and logged by the flush.
	_ = q.FlushPendingChanges(q.ctx)
}

func (q *Queue) setStatusLocked(s Status) {
	q.status = s
	q.outbox = append(q.outbox, q.eventLocked())
}

func (q *Queue) eventLocked() StatusEvent {
	ev := StatusEvent{
		Status:   q.status,
		Pending:  len(q.pending),
		Attempts: q.attempts,
		At:       q.config.Clock.Now(),
	}
	if q.status == StatusError || q.status == StatusPending {
		ev.Error = q.lastErr
	}
	return ev
}

func (q *Queue) unlockAndNotify() {
	events := q.outbox
	q.outbox = nil
	observers := append([]func(StatusEvent){}, q.observers...)
	q.mu.Unlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}
