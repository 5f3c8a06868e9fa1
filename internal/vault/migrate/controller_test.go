package migrate

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/sessionvault/internal/vault/local"
	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage/storagetest"
)

var quiet = log.New(io.Discard, "", 0)

func setupLocal(t *testing.T) *local.Store {
	t.Helper()

	store, err := local.Open(filepath.Join(t.TempDir(), "sessions.db"), local.WithLogger(quiet))
	if err != nil {
		t.Fatalf("local.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *local.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		sess := &schema.Session{
			ID:           id,
			CurrentStage: "stage-" + id,
			Responses:    schema.Responses{"q": schema.StringValue(id)},
		}
		if _, err := store.SaveSession(context.Background(), sess); err != nil {
			t.Fatalf("SaveSession(%s) failed: %v", id, err)
		}
	}
}

func TestMigrateToCloud_NoLocalSessions(t *testing.T) {
	ctx := context.Background()
	c := NewController(setupLocal(t), quiet)
	remote := storagetest.NewMemory(storage.KindRemote, nil)

	result, err := c.MigrateToCloud(ctx, remote, nil)
	if err != nil {
		t.Fatalf("MigrateToCloud() failed: %v", err)
	}
	want := &Result{Success: true, Errors: []string{}}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}
	if n := remote.TotalCalls(); n != 0 {
		t.Errorf("remote calls = %d, want 0", n)
	}
	if c.State() != StateComplete {
		t.Errorf("State() = %s, want complete", c.State())
	}
}

func TestMigrateToCloud_EmptyRemote(t *testing.T) {
	ctx := context.Background()
	store := setupLocal(t)
	seed(t, store, "s1", "s2")
	if _, err := store.SaveDocument(ctx, "s1", "tpl", "body"); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}

	c := NewController(store, quiet)
	remote := storagetest.NewMemory(storage.KindRemote, nil)

	result, err := c.MigrateToCloud(ctx, remote, nil)
	if err != nil {
		t.Fatalf("MigrateToCloud() failed: %v", err)
	}
	if !result.Success || result.MigratedCount != 2 || result.SkippedCount != 0 {
		t.Errorf("Result = %+v, want success with 2 migrated", result)
	}

	for _, id := range []string{"s1", "s2"} {
		got, err := remote.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("remote GetSession(%s) failed: %v", id, err)
		}
		if got == nil || got.CurrentStage != "stage-"+id {
			t.Errorf("remote %s = %+v", id, got)
		}
	}
	doc, err := remote.GetDocument(ctx, "s1")
	if err != nil || doc == nil || doc.Content != "body" {
		t.Errorf("remote document = %+v, %v; want body", doc, err)
	}
	if c.State() != StateComplete {
		t.Errorf("State() = %s, want complete", c.State())
	}
}

func TestMigrateToCloud_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	store := setupLocal(t)
	seed(t, store, "s1")

	remote := storagetest.NewMemory(storage.KindRemote, nil)
	// Older than the local copy; migration must still leave it alone.
	existing := &schema.Session{
		ID:            "s1",
		CurrentStage:  "remote-stage",
		LastUpdatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	remote.Put(existing)

	result, err := NewController(store, quiet).MigrateToCloud(ctx, remote, nil)
	if err != nil {
		t.Fatalf("MigrateToCloud() failed: %v", err)
	}
	if result.SkippedCount != 1 || result.MigratedCount != 0 || !result.Success {
		t.Errorf("Result = %+v, want 1 skipped, 0 migrated, success", result)
	}
	if n := remote.Calls("save session"); n != 0 {
		t.Errorf("remote SaveSession calls = %d, want 0", n)
	}

	got, _ := remote.GetSession(ctx, "s1")
	if got.CurrentStage != "remote-stage" || !got.LastUpdatedAt.Equal(existing.LastUpdatedAt) {
		t.Errorf("remote copy modified: %+v", got)
	}
}

func TestMigrateToCloud_PartialFailure(t *testing.T) {
	ctx := context.Background()
	store := setupLocal(t)
	seed(t, store, "s1", "s2", "s3")

	remote := storagetest.NewMemory(storage.KindRemote, nil)
	remote.FailOn = func(op, id string) error {
		if op == "save session" && id == "s2" {
			return storagetest.ErrInjected
		}
		return nil
	}

	result, err := NewController(store, quiet).MigrateToCloud(ctx, remote, nil)
	if err != nil {
		t.Fatalf("MigrateToCloud() failed: %v", err)
	}
	if result.MigratedCount != 2 {
		t.Errorf("MigratedCount = %d, want 2", result.MigratedCount)
	}
	if len(result.Errors) != 1 || !strings.HasPrefix(result.Errors[0], "session s2: ") {
		t.Errorf("Errors = %q, want one entry for s2", result.Errors)
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if diff := cmp.Diff([]string{"s2"}, result.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}

	for _, id := range []string{"s1", "s3"} {
		if got, _ := remote.GetSession(ctx, id); got == nil {
			t.Errorf("remote %s missing after partial failure", id)
		}
	}
}

func TestMigrateToCloud_Progress(t *testing.T) {
	ctx := context.Background()
	store := setupLocal(t)
	seed(t, store, "a", "b")

	var events []Progress
	_, err := NewController(store, quiet).MigrateToCloud(ctx,
		storagetest.NewMemory(storage.KindRemote, nil),
		func(p Progress) { events = append(events, p) })
	if err != nil {
		t.Fatalf("MigrateToCloud() failed: %v", err)
	}

	var statuses []State
	last := 0
	for _, p := range events {
		statuses = append(statuses, p.Status)
		if p.Completed < last {
			t.Errorf("Completed went backwards: %d after %d", p.Completed, last)
		}
		last = p.Completed
	}
	want := []State{StateDetecting, StateMigrating, StateMigrating, StateMigrating, StateVerifying, StateComplete}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("status sequence mismatch (-want +got):\n%s", diff)
	}
	if final := events[len(events)-1]; final.Total != 2 || final.Completed != 2 {
		t.Errorf("final progress = %+v, want 2/2", final)
	}
}

type failingLocal struct {
	*local.Store
}

func (failingLocal) AllSessions(context.Context) ([]*schema.Session, error) {
	return nil, errors.New("disk gone")
}

func TestMigrateToCloud_LocalEnumerationFails(t *testing.T) {
	c := NewController(failingLocal{setupLocal(t)}, quiet)
	remote := storagetest.NewMemory(storage.KindRemote, nil)

	if _, err := c.MigrateToCloud(context.Background(), remote, nil); err == nil {
		t.Fatal("MigrateToCloud() succeeded, want error")
	}
	if c.State() != StateError {
		t.Errorf("State() = %s, want error", c.State())
	}
}

func TestDetectLocalData(t *testing.T) {
	ctx := context.Background()
	store := setupLocal(t)
	c := NewController(store, quiet)

	d, err := c.DetectLocalData(ctx)
	if err != nil {
		t.Fatalf("DetectLocalData() failed: %v", err)
	}
	if d.SessionCount != 0 || d.HasSecrets || d.OldestSession != nil {
		t.Errorf("empty Detection = %+v", d)
	}
	if c.State() != StateComplete {
		t.Errorf("State() with no data = %s, want complete", c.State())
	}

	seed(t, store, "x", "y")
	if err := store.SaveSecret(ctx, "acme", "blob"); err != nil {
		t.Fatalf("SaveSecret() failed: %v", err)
	}
	d, err = c.DetectLocalData(ctx)
	if err != nil {
		t.Fatalf("DetectLocalData() failed: %v", err)
	}
	if d.SessionCount != 2 || !d.HasSecrets || d.OldestSession == nil || d.NewestSession == nil {
		t.Errorf("Detection = %+v, want 2 sessions with secrets and time range", d)
	}
	if d.OldestSession.After(*d.NewestSession) {
		t.Errorf("oldest %v after newest %v", d.OldestSession, d.NewestSession)
	}
	if c.State() != StateIdle {
		t.Errorf("State() with data = %s, want idle", c.State())
	}
}

func TestBackupClearRestore(t *testing.T) {
	ctx := context.Background()
	store := setupLocal(t)
	seed(t, store, "s1", "s2")
	if _, err := store.SaveDocument(ctx, "s2", "tpl", "content"); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}
	if err := store.SaveSecret(ctx, "acme", "blob"); err != nil {
		t.Fatalf("SaveSecret() failed: %v", err)
	}
	before, _ := store.GetSession(ctx, "s1")

	c := NewController(store, quiet)
	backup, err := c.GetLocalSessionBackup(ctx)
	if err != nil {
		t.Fatalf("GetLocalSessionBackup() failed: %v", err)
	}
	if len(backup.Sessions) != 2 || len(backup.Documents) != 1 {
		t.Fatalf("backup has %d sessions, %d documents; want 2, 1", len(backup.Sessions), len(backup.Documents))
	}

	path := filepath.Join(t.TempDir(), "backup", "sessions.jsonl")
	if err := WriteBackupFile(path, backup); err != nil {
		t.Fatalf("WriteBackupFile() failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("backup mode = %o, want 600", perm)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "blob") {
		t.Error("backup file contains secret material")
	}

	if err := c.ClearLocalSessionsAfterMigration(ctx); err != nil {
		t.Fatalf("ClearLocalSessionsAfterMigration() failed: %v", err)
	}
	if n, _ := store.CountSessions(ctx); n != 0 {
		t.Fatalf("CountSessions() after clear = %d, want 0", n)
	}
	if has, _ := store.HasSecrets(ctx); !has {
		t.Error("clear removed secrets")
	}

	restored, err := ReadBackupFile(path)
	if err != nil {
		t.Fatalf("ReadBackupFile() failed: %v", err)
	}
	if !restored.CreatedAt.Equal(backup.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", restored.CreatedAt, backup.CreatedAt)
	}
	if err := c.RestoreLocalSessions(ctx, restored); err != nil {
		t.Fatalf("RestoreLocalSessions() failed: %v", err)
	}

	after, err := store.GetSession(ctx, "s1")
	if err != nil || after == nil {
		t.Fatalf("GetSession(s1) after restore = %v, %v", after, err)
	}
	if !after.LastUpdatedAt.Equal(before.LastUpdatedAt) || after.CurrentStage != before.CurrentStage {
		t.Errorf("restored s1 = %+v, want %+v", after, before)
	}
	doc, err := store.GetDocument(ctx, "s2")
	if err != nil || doc == nil || doc.Content != "content" {
		t.Errorf("restored document = %+v, %v", doc, err)
	}
}

func TestReadBackupFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"mystery"}`+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadBackupFile(path); err == nil {
		t.Error("ReadBackupFile() accepted unknown record type")
	}
}
