package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/sessionvault/internal/vault"
	"github.com/mschirtzinger/sessionvault/internal/vault/local"
	"github.com/mschirtzinger/sessionvault/internal/vault/migrate"
	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
	"github.com/mschirtzinger/sessionvault/internal/vault/syncqueue"
)

var quiet = log.New(io.Discard, "", 0)

func setupApp(t *testing.T) *vault.App {
	t.Helper()

	store, err := local.Open(filepath.Join(t.TempDir(), "sessions.db"), local.WithLogger(quiet))
	if err != nil {
		t.Fatalf("local.Open() failed: %v", err)
	}
	cfg := vault.DefaultConfig()
	cfg.Logger = quiet
	cfg.Sync.Logger = quiet

	app, err := vault.New(store, cfg)
	if err != nil {
		t.Fatalf("vault.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func startServer(t *testing.T, backend Backend) *Server {
	t.Helper()

	server := NewServer(&Config{Port: 0, Backend: backend, Logger: quiet})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("websocket.Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: quiet})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestWebSocket_WelcomeSnapshot(t *testing.T) {
	server := startServer(t, setupApp(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncStatus {
		t.Fatalf("welcome type = %s, want %s", msg.Type, MessageTypeSyncStatus)
	}

	var ev syncqueue.StatusEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("failed to unmarshal welcome data: %v", err)
	}
	if ev.Status != syncqueue.StatusIdle {
		t.Errorf("welcome status = %s, want %s", ev.Status, syncqueue.StatusIdle)
	}
}

func TestHandler_BroadcastsEvents(t *testing.T) {
	server := startServer(t, nil)
	handler := NewHandler(server, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clients := []*websocket.Conn{dial(t, ctx, server), dial(t, ctx, server)}
	waitForClients(t, server, len(clients))

	handler.OnAdapterChanged(storage.Handle{Kind: storage.KindRemote, Generation: 2})
	handler.OnSessionSaved(&schema.Session{
		ID:        "s1",
		Responses: schema.Responses{"q": schema.StringValue("a")},
	})
	handler.OnSyncStatus(syncqueue.StatusEvent{Status: syncqueue.StatusPending, Pending: 1})
	handler.OnMigrationProgress(migrate.Progress{Total: 3, Completed: 1, Current: "s1", Status: migrate.StateMigrating})

	want := []MessageType{
		MessageTypeAdapterChanged,
		MessageTypeSessionSaved,
		MessageTypeSyncStatus,
		MessageTypeMigrationProgress,
	}
	for i, conn := range clients {
		for _, typ := range want {
			msg := readMessage(t, ctx, conn)
			if msg.Type != typ {
				t.Fatalf("client %d: message type = %s, want %s", i, msg.Type, typ)
			}
			if typ == MessageTypeSessionSaved {
				var data SessionSavedData
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					t.Fatalf("failed to unmarshal session data: %v", err)
				}
				if data.SessionID != "s1" || data.Responses != 1 {
					t.Errorf("session data = %+v", data)
				}
			}
		}
	}

	stats := handler.GetStats()
	if stats.SessionsSaved != 1 || stats.AdapterChanges != 1 || stats.MigrationEvents != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastSyncStatus != syncqueue.StatusPending {
		t.Errorf("LastSyncStatus = %s, want pending", stats.LastSyncStatus)
	}
}

func TestHealth(t *testing.T) {
	server := startServer(t, nil)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
}

func TestAPI_NoBackend(t *testing.T) {
	server := startServer(t, nil)

	resp, err := http.Get("http://" + server.GetAddr() + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			r = bytes.NewBufferString(raw)
		} else {
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("json.Marshal() failed: %v", err)
			}
			r = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPI_SessionLifecycle(t *testing.T) {
	app := setupApp(t)
	server := startServer(t, app)
	base := "http://" + server.GetAddr()

	resp := do(t, http.MethodGet, base+"/api/sessions/s1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET missing session status = %d, want 404", resp.StatusCode)
	}

	resp = do(t, http.MethodPut, base+"/api/sessions/s1", map[string]any{
		"current_stage": "intro",
		"responses":     map[string]any{"q1": "yes", "q2": true, "q3": []string{"a", "b"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT session status = %d, want 200", resp.StatusCode)
	}
	var saved schema.Session
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("failed to decode saved session: %v", err)
	}
	if saved.ID != "s1" || saved.LastUpdatedAt.IsZero() {
		t.Errorf("saved = %+v, want id s1 with a stamp", saved)
	}

	resp = do(t, http.MethodPut, base+"/api/sessions/s1", map[string]any{"session_id": "other"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT mismatched id status = %d, want 400", resp.StatusCode)
	}
	resp = do(t, http.MethodPut, base+"/api/sessions/s1", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT bad body status = %d, want 400", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base+"/api/sessions?limit=5", nil)
	var list []*schema.Session
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "s1" || len(list[0].Responses) != 3 {
		t.Errorf("list = %+v, want one session with 3 responses", list)
	}
	resp = do(t, http.MethodGet, base+"/api/sessions?limit=-1", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("GET negative limit status = %d, want 400", resp.StatusCode)
	}

	resp = do(t, http.MethodPut, base+"/api/sessions/s1/document", DocumentRequest{Content: "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT document without template status = %d, want 400", resp.StatusCode)
	}
	resp = do(t, http.MethodPut, base+"/api/sessions/s1/document", DocumentRequest{TemplateID: "tpl", Content: "# Plan"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT document status = %d, want 200", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base+"/api/sessions/s1/document", nil)
	var doc schema.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}
	if doc.Content != "# Plan" || doc.TemplateID != "tpl" {
		t.Errorf("document = %+v", doc)
	}

	resp = do(t, http.MethodGet, base+"/api/status", nil)
	var status vault.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Adapter != storage.KindLocal {
		t.Errorf("status adapter = %s, want local", status.Adapter)
	}

	resp = do(t, http.MethodDelete, base+"/api/sessions/s1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, base+"/api/sessions/s1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", resp.StatusCode)
	}
}
