package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

// execute runs the CLI with args against an isolated environment and
// returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Flag values persist on the global command tree between runs.
	resetFlags(rootCmd)
	cfg, logs = nil, nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func setupCLI(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	return home
}

func TestCLI_SessionRoundTrip(t *testing.T) {
	home := setupCLI(t)

	input := filepath.Join(home, "session.json")
	body := `{"session_id":"cli-1","current_stage":"goals","responses":{"budget":"low","remote":true,"tags":["a","b"]}}`
	if err := os.WriteFile(input, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if _, err := execute(t, "session", "save", input); err != nil {
		t.Fatalf("session save failed: %v", err)
	}

	out, err := execute(t, "session", "show", "cli-1", "--format", "json")
	if err != nil {
		t.Fatalf("session show failed: %v", err)
	}
	var got schema.Session
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("failed to parse show output %q: %v", out, err)
	}
	if got.ID != "cli-1" || got.CurrentStage != "goals" || len(got.Responses) != 3 {
		t.Errorf("show = %+v", got)
	}

	out, err = execute(t, "session", "list", "--format", "yaml")
	if err != nil {
		t.Fatalf("session list failed: %v", err)
	}
	var listed []map[string]any
	if err := yaml.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("failed to parse yaml list: %v", err)
	}
	if len(listed) != 1 || listed[0]["session_id"] != "cli-1" {
		t.Errorf("list = %v", listed)
	}

	out, err = execute(t, "session", "list", "--since", "yesterday")
	if err != nil {
		t.Fatalf("session list --since failed: %v", err)
	}
	if !strings.Contains(out, "cli-1") {
		t.Errorf("list --since output missing session:\n%s", out)
	}

	if _, err := execute(t, "session", "delete", "cli-1", "--yes"); err != nil {
		t.Fatalf("session delete failed: %v", err)
	}
	if _, err := execute(t, "session", "show", "cli-1"); err == nil {
		t.Error("session show after delete succeeded, want error")
	}
}

func TestCLI_BackupRestore(t *testing.T) {
	home := setupCLI(t)

	if _, err := execute(t, "session", "new", "--stage", "intro"); err != nil {
		t.Fatalf("session new failed: %v", err)
	}
	out, err := execute(t, "session", "list", "--format", "json")
	if err != nil {
		t.Fatalf("session list failed: %v", err)
	}
	var before []*schema.Session
	if err := json.Unmarshal([]byte(out), &before); err != nil {
		t.Fatalf("failed to parse list: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("sessions before backup = %d, want 1", len(before))
	}

	backup := filepath.Join(home, "backup.jsonl")
	if _, err := execute(t, "backup", backup); err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if _, err := execute(t, "session", "delete", before[0].ID, "--yes"); err != nil {
		t.Fatalf("session delete failed: %v", err)
	}
	if _, err := execute(t, "restore", backup, "--yes"); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	out, err = execute(t, "session", "list", "--format", "json")
	if err != nil {
		t.Fatalf("session list failed: %v", err)
	}
	var after []*schema.Session
	if err := json.Unmarshal([]byte(out), &after); err != nil {
		t.Fatalf("failed to parse list: %v", err)
	}
	ids := func(ss []*schema.Session) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.ID)
		}
		return out
	}
	if diff := cmp.Diff(ids(before), ids(after)); diff != "" {
		t.Errorf("restored ids mismatch (-before +after):\n%s", diff)
	}
}

func TestCLI_MigrateRequiresSignIn(t *testing.T) {
	setupCLI(t)

	_, err := execute(t, "migrate", "--yes")
	if err == nil || !strings.Contains(err.Error(), "not signed in") {
		t.Errorf("migrate without credentials err = %v, want not signed in", err)
	}
}

func TestCLI_MigrateClearRequiresBackup(t *testing.T) {
	setupCLI(t)

	if _, err := execute(t, "session", "new", "--stage", "intro"); err != nil {
		t.Fatalf("session new failed: %v", err)
	}

	_, err := execute(t, "migrate", "--yes", "--clear")
	if err == nil || !strings.Contains(err.Error(), "--clear requires --backup") {
		t.Fatalf("migrate --clear without --backup err = %v, want rejection", err)
	}

	out, err := execute(t, "session", "list", "--format", "json")
	if err != nil {
		t.Fatalf("session list failed: %v", err)
	}
	var sessions []*schema.Session
	if err := json.Unmarshal([]byte(out), &sessions); err != nil {
		t.Fatalf("failed to parse list: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("sessions after rejected migrate = %d, want 1", len(sessions))
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	home := setupCLI(t)
	path := filepath.Join(home, "custom", "config.toml")

	if _, err := execute(t, "config", "init", "--config", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("second config init succeeded, want already-exists error")
	}
	out, err := execute(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "sync.max_retries       3") {
		t.Errorf("config show output:\n%s", out)
	}
}

func TestCLI_UnknownFormat(t *testing.T) {
	setupCLI(t)

	if _, err := execute(t, "status", "--format", "xml"); err == nil {
		t.Error("--format xml succeeded, want error")
	}
}
