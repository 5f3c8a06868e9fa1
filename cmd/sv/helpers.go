package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/sessionvault/internal/vault"
	"github.com/mschirtzinger/sessionvault/internal/vault/local"
	"github.com/mschirtzinger/sessionvault/internal/vault/remote"
	"github.com/mschirtzinger/sessionvault/internal/vault/syncqueue"
	"github.com/mschirtzinger/sessionvault/internal/vault/turso"
)

// session couples an App with the remote connection it may hold.
type session struct {
	app  *vault.App
	conn interface{ Close() error }
}

// openApp opens the local store and, unless --offline is set or no
// credentials exist, signs in to the remote store.
func openApp(ctx context.Context) (*session, error) {
	store, err := local.Open(cfg.LocalPath(), local.WithLogger(logs.Logger("local")))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	appCfg := vault.DefaultConfig()
	appCfg.Logger = logs.Logger("vault")
	appCfg.SelectorLogger = logs.Logger("selector")
	appCfg.MigrateLogger = logs.Logger("migrate")
	appCfg.Sync = &syncqueue.Config{
		QuietPeriod:    cfg.Sync.QuietPeriod,
		BaseRetryDelay: cfg.Sync.BaseRetryDelay,
		MaxRetries:     cfg.Sync.MaxRetries,
		Clock:          syncqueue.RealClock,
		Logger:         logs.Logger("sync"),
	}
	appCfg.RemoteOptions = []remote.Option{remote.WithLogger(logs.Logger("remote"))}

	app, err := vault.New(store, appCfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s := &session{app: app}
	if offline {
		return s, nil
	}

	creds, err := turso.ReadCredentials(cfg.CredentialsPath())
	if errors.Is(err, turso.ErrNoCredentials) {
		return s, nil
	}
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	conn, err := turso.Open(ctx, creds)
	if err != nil {
		// Unreachable remote: keep working locally.
		logs.Logger("vault").Printf("Remote unavailable, using local store: %v", err)
		return s, nil
	}
	if _, err := app.SignIn(ctx, conn); err != nil {
		_ = conn.Close()
		logs.Logger("vault").Printf("Sign-in failed, using local store: %v", err)
		return s, nil
	}
	s.conn = conn
	return s, nil
}

// Close flushes pending changes, then releases the stores.
func (s *session) Close(ctx context.Context) error {
	err := s.app.Close(ctx)
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
	}
	return err
}

// emit writes v in the selected --format. text falls back to the given
// printer.
func emit(w io.Writer, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so yaml keys match the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

// readInput returns the contents of path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	// #nosec G304 - path is supplied by the user on the command line
	return os.ReadFile(path)
}
