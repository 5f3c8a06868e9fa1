package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mschirtzinger/sessionvault/internal/vault"
	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

// Backend is the subset of *vault.App served over HTTP.
type Backend interface {
	ListSessions(ctx context.Context, limit int) ([]*schema.Session, error)
	GetSession(ctx context.Context, id string) (*schema.Session, error)
	SaveSession(ctx context.Context, s *schema.Session) (string, error)
	DeleteSession(ctx context.Context, id string) error
	GetDocument(ctx context.Context, sessionID string) (*schema.Document, error)
	SaveDocument(ctx context.Context, sessionID, templateID, content string) (string, error)
	Status() vault.Status
}

var _ Backend = (*vault.App)(nil)

// maxBodyBytes caps PUT request bodies.
const maxBodyBytes = 4 << 20

// DocumentRequest is the body of PUT /api/sessions/{id}/document.
type DocumentRequest struct {
	TemplateID string `json:"template_id"`
	Content    string `json:"content"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PUT /api/sessions/{id}", s.handlePutSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/document", s.handleGetDocument)
	mux.HandleFunc("PUT /api/sessions/{id}/document", s.handlePutDocument)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	sessions, err := s.backend.ListSessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.backend.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var sess schema.Session
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sess); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid session body: " + err.Error()})
		return
	}
	if sess.ID != "" && sess.ID != id {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "session_id does not match path"})
		return
	}
	sess.ID = id

	if _, err := s.backend.SaveSession(r.Context(), &sess); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.backend.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "document not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid document body: " + err.Error()})
		return
	}

	docID, err := s.backend.SaveDocument(r.Context(), r.PathValue("id"), req.TemplateID, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": docID})
}

// writeError maps storage errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, schema.ErrInvalid):
		status = http.StatusBadRequest
	case schema.IsTransport(err):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Printf("API error: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
