// Package storagetest provides an in-memory storage.Adapter for tests that
// need failure injection or call accounting.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// ErrInjected is the cause wrapped by injected transport failures.
var ErrInjected = errors.New("injected failure")

// Memory is a map-backed adapter. It stamps writes like the real stores.
type Memory struct {
	mu        sync.Mutex
	kind      storage.Kind
	clock     storage.Clock
	sessions  map[string]*schema.Session
	documents map[string]*schema.Document

	// FailOn, when set, is consulted before every operation. A non-nil
	// return is wrapped as a TransportError and returned.
	FailOn func(op, id string) error

	calls map[string]int
}

// NewMemory returns an empty adapter of the given kind.
func NewMemory(kind storage.Kind, clock storage.Clock) *Memory {
	if clock == nil {
		clock = storage.SystemClock
	}
	return &Memory{
		kind:      kind,
		clock:     clock,
		sessions:  make(map[string]*schema.Session),
		documents: make(map[string]*schema.Document),
		calls:     make(map[string]int),
	}
}

var _ storage.Adapter = (*Memory)(nil)

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of operations invoked, of any kind.
func (m *Memory) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// Put stores a copy of s verbatim, without stamping or counting a call.
func (m *Memory) Put(s *schema.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
}

// Len returns the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Memory) enter(op, id string) error {
	m.calls[op]++
	if m.FailOn == nil {
		return nil
	}
	if err := m.FailOn(op, id); err != nil {
		return schema.NewTransportError(string(m.kind), op, err)
	}
	return nil
}

func (m *Memory) Kind() storage.Kind { return m.kind }

func (m *Memory) SaveSession(_ context.Context, s *schema.Session) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("save session", s.ID); err != nil {
		return "", err
	}

	var previous time.Time
	if prev, ok := m.sessions[s.ID]; ok {
		previous = prev.LastUpdatedAt
		if prev.StartedAt != nil {
			s.StartedAt = prev.StartedAt
		}
	}
	s.LastUpdatedAt = storage.NextStamp(m.clock(), previous)
	m.sessions[s.ID] = s.Clone()
	return s.ID, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*schema.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get session", id); err != nil {
		return nil, err
	}
	return m.sessions[id].Clone(), nil
}

func (m *Memory) GetLatestSession(ctx context.Context) (*schema.Session, error) {
	list, err := m.ListSessions(ctx, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete session", id); err != nil {
		return err
	}
	delete(m.sessions, id)
	delete(m.documents, id)
	return nil
}

func (m *Memory) ListSessions(_ context.Context, limit int) ([]*schema.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list sessions", ""); err != nil {
		return nil, err
	}

	out := make([]*schema.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdatedAt.Equal(out[j].LastUpdatedAt) {
			return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if n := storage.NormalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) SaveDocument(_ context.Context, sessionID, templateID, content string) (string, error) {
	if err := schema.ValidateDocumentInput(sessionID, templateID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("save document", sessionID); err != nil {
		return "", err
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return "", &schema.ValidationError{Field: "session_id", Reason: "unknown session " + sessionID}
	}

	doc, ok := m.documents[sessionID]
	if !ok {
		doc = &schema.Document{ID: schema.NewDocumentID(), SessionID: sessionID}
		m.documents[sessionID] = doc
	}
	doc.TemplateID = templateID
	doc.Content = content
	doc.UpdatedAt = schema.Millis(m.clock())
	return doc.ID, nil
}

func (m *Memory) GetDocument(_ context.Context, sessionID string) (*schema.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get document", sessionID); err != nil {
		return nil, err
	}
	doc, ok := m.documents[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}
