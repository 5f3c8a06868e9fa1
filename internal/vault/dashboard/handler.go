package dashboard

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/migrate"
	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
	"github.com/mschirtzinger/sessionvault/internal/vault/syncqueue"
)

// AdapterChangedData reports a new adapter binding.
type AdapterChangedData struct {
	Adapter    storage.Kind `json:"adapter"`
	Generation uint64       `json:"generation"`
}

// SessionSavedData reports a session write.
type SessionSavedData struct {
	SessionID     string    `json:"session_id"`
	CurrentStage  string    `json:"current_stage"`
	IsComplete    bool      `json:"is_complete"`
	Responses     int       `json:"responses"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// StatsData counts what the handler has forwarded since it was created.
type StatsData struct {
	SessionsSaved   int              `json:"sessions_saved"`
	AdapterChanges  int              `json:"adapter_changes"`
	LastSyncStatus  syncqueue.Status `json:"last_sync_status"`
	MigrationEvents int              `json:"migration_events"`
}

// Handler turns App events into dashboard messages.
// Its On* methods match the callback shapes of the queue, selector,
// migration controller and App, so they can be subscribed directly.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{server: server, logger: logger}
}

// OnSyncStatus forwards a sync queue status change.
func (h *Handler) OnSyncStatus(ev syncqueue.StatusEvent) {
	h.mu.Lock()
	h.stats.LastSyncStatus = ev.Status
	h.mu.Unlock()

	h.server.Publish(MessageTypeSyncStatus, ev)
}

// OnMigrationProgress forwards one migration progress event.
func (h *Handler) OnMigrationProgress(p migrate.Progress) {
	h.mu.Lock()
	h.stats.MigrationEvents++
	h.mu.Unlock()

	h.server.Publish(MessageTypeMigrationProgress, p)
}

// OnAdapterChanged forwards a selector rebinding.
func (h *Handler) OnAdapterChanged(handle storage.Handle) {
	h.logger.Printf("Adapter changed: %s (generation %d)", handle.Kind, handle.Generation)

	h.mu.Lock()
	h.stats.AdapterChanges++
	h.mu.Unlock()

	h.server.Publish(MessageTypeAdapterChanged, AdapterChangedData{
		Adapter:    handle.Kind,
		Generation: handle.Generation,
	})
}

// OnSessionSaved forwards a summary of a saved session.
func (h *Handler) OnSessionSaved(s *schema.Session) {
	h.mu.Lock()
	h.stats.SessionsSaved++
	h.mu.Unlock()

	h.server.Publish(MessageTypeSessionSaved, SessionSavedData{
		SessionID:     s.ID,
		CurrentStage:  s.CurrentStage,
		IsComplete:    s.IsComplete,
		Responses:     len(s.Responses),
		LastUpdatedAt: s.LastUpdatedAt,
	})
}

// GetStats returns the current counters.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
