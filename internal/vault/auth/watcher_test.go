package auth

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/turso"
)

func setupWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auth", "credentials.json")
	w, err := NewWatcher(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	return w, path
}

// waitForEvent waits for an event or fails after timeout.
func waitForEvent(t *testing.T, w *Watcher, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case err := <-w.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(timeout):
		t.Fatal("timeout waiting for auth event")
	}
	return Event{}
}

func TestNewWatcher_EmptyPath(t *testing.T) {
	if _, err := NewWatcher("", nil); err == nil {
		t.Error("NewWatcher(\"\") succeeded, want error")
	}
}

func TestWatcher_StartStop(t *testing.T) {
	w, _ := setupWatcher(t)

	if w.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() succeeded, want error")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
}

func TestWatcher_Current(t *testing.T) {
	w, path := setupWatcher(t)
	defer w.Stop()

	ev, err := w.Current()
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if ev.Kind != SignedOut {
		t.Errorf("Current() without file = %s, want signed-out", ev.Kind)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	creds := turso.Credentials{URL: "libsql://db.example.io", AuthToken: "t"}
	if err := turso.WriteCredentials(path, creds); err != nil {
		t.Fatalf("WriteCredentials() failed: %v", err)
	}
	ev, err = w.Current()
	if err != nil {
		t.Fatalf("Current() failed: %v", err)
	}
	if ev.Kind != SignedIn || ev.Credentials != creds {
		t.Errorf("Current() = %+v, want signed-in with %+v", ev, creds)
	}
}

func TestWatcher_SignInSignOut(t *testing.T) {
	w, path := setupWatcher(t)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	creds := turso.Credentials{URL: "libsql://db.example.io", AuthToken: "t"}
	if err := turso.WriteCredentials(path, creds); err != nil {
		t.Fatalf("WriteCredentials() failed: %v", err)
	}

	ev := waitForEvent(t, w, 2*time.Second)
	if ev.Kind != SignedIn || ev.Credentials != creds {
		t.Fatalf("event = %+v, want signed-in", ev)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	ev = waitForEvent(t, w, 2*time.Second)
	if ev.Kind != SignedOut {
		t.Fatalf("event = %+v, want signed-out", ev)
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	w, path := setupWatcher(t)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	if err := os.WriteFile(other, []byte("hi"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for sibling file: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{SignedOut, "signed-out"},
		{SignedIn, "signed-in"},
		{EventKind(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
