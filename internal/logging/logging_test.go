package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mschirtzinger/sessionvault/internal/config"
)

func TestNew_QuietDiscards(t *testing.T) {
	f, err := New(config.LogConfig{}, false)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer f.Close()

	if f.Writer() != io.Discard {
		t.Error("quiet factory without file should discard")
	}
}

func TestNew_FileReceivesPrefixedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sv.log")
	f, err := New(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, false)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	f.Logger("sync").Printf("flushed %d changes", 3)
	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	line := string(data)
	if !strings.HasPrefix(line, "[sync] ") || !strings.Contains(line, "flushed 3 changes") {
		t.Errorf("log line = %q", line)
	}
}
