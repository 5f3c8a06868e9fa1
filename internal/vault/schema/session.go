package schema

import (
	"bytes"
	"encoding/json"
	"time"
)

// Session is the unit of persistence shared by the local and remote stores.
type Session struct {
	// ===== Identity =====
	ID string `json:"session_id"`

	// ===== Workflow progress (opaque to storage) =====
	CurrentStage         string `json:"current_stage"`
	CurrentQuestionIndex int    `json:"current_question_index"`

	// ===== Answers =====
	Responses Responses `json:"responses"`

	// ===== Collaborator payloads, persisted verbatim =====
	Requirements    json.RawMessage `json:"requirements,omitempty"`
	Recommendations json.RawMessage `json:"recommendations,omitempty"`

	IsComplete bool `json:"is_complete"`

	// ===== Timestamps =====
	StartedAt *time.Time `json:"started_at,omitempty"`
	// LastUpdatedAt is stamped by the adapter on every write.
	LastUpdatedAt time.Time `json:"last_updated_at"`

	// ===== Model choice =====
	SelectedProvider string `json:"selected_provider,omitempty"`
	SelectedModel    string `json:"selected_model,omitempty"`
}

// Validate checks the session shape before it is written.
func (s *Session) Validate() error {
	if s == nil {
		return invalid("session", "is nil")
	}
	if s.ID == "" {
		return invalid("session_id", "is required")
	}
	if s.CurrentQuestionIndex < 0 {
		return invalid("current_question_index", "must be >= 0 (got %d)", s.CurrentQuestionIndex)
	}
	if err := s.Responses.Validate(); err != nil {
		return err
	}
	if err := validPayload("requirements", s.Requirements); err != nil {
		return err
	}
	if err := validPayload("recommendations", s.Recommendations); err != nil {
		return err
	}
	return nil
}

func validPayload(field string, raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		return invalid(field, "is not valid JSON")
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Responses = s.Responses.Clone()
	c.Requirements = cloneRaw(s.Requirements)
	c.Recommendations = cloneRaw(s.Recommendations)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	return &c
}

// UpdatedAt returns LastUpdatedAt, or the zero time for a nil session.
// Absence sorts as infinitely old.
func (s *Session) UpdatedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.LastUpdatedAt
}

// SetDefaults fills fields a fresh session needs.
func (s *Session) SetDefaults(now time.Time) {
	if s.Responses == nil {
		s.Responses = Responses{}
	}
	if s.StartedAt == nil {
		t := now.UTC()
		s.StartedAt = &t
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// Millis truncates t to the millisecond precision used by every adapter.
func Millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FromMillis converts a stored unix-millisecond value back to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
