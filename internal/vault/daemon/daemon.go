// Package daemon hosts the long-running sync loop.
//
// The daemon:
//  1. Follows the credentials file and signs the App in or out
//  2. Optionally migrates local sessions after the first sign-in
//  3. Probes the remote connection and feeds connectivity to the sync queue
//  4. Forwards App events to the dashboard
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault"
	"github.com/mschirtzinger/sessionvault/internal/vault/auth"
	"github.com/mschirtzinger/sessionvault/internal/vault/dashboard"
	"github.com/mschirtzinger/sessionvault/internal/vault/migrate"
	"github.com/mschirtzinger/sessionvault/internal/vault/turso"
)

// ConnectFunc opens an authenticated remote connection.
type ConnectFunc func(ctx context.Context, creds turso.Credentials) (*sql.DB, error)

// Config holds configuration for the daemon.
type Config struct {
	// ProbeInterval is how often the remote connection is pinged
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single ping
	ProbeTimeout time.Duration

	// AutoMigrate copies local sessions to the remote store after sign-in
	AutoMigrate bool

	// Connect opens the remote connection (default: turso.Open)
	Connect ConnectFunc

	// Dashboard receives App events. Nil disables forwarding.
	Dashboard *dashboard.Handler

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
		Connect:       turso.Open,
		Logger:        log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon keeps an App bound to the right store while it runs.
type Daemon struct {
	app     *vault.App
	watcher *auth.Watcher
	config  *Config

	connMu sync.Mutex
	conn   *sql.DB
	online bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon with default configuration.
func New(app *vault.App, watcher *auth.Watcher) (*Daemon, error) {
	return NewWithConfig(app, watcher, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(app *vault.App, watcher *auth.Watcher, config *Config) (*Daemon, error) {
	if app == nil {
		return nil, fmt.Errorf("app cannot be nil")
	}
	if watcher == nil {
		return nil, fmt.Errorf("watcher cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.ProbeInterval <= 0 {
		return nil, fmt.Errorf("probe interval must be positive")
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.Connect == nil {
		config.Connect = turso.Open
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		app:     app,
		watcher: watcher,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	if h := config.Dashboard; h != nil {
		app.Queue().Subscribe(h.OnSyncStatus)
		app.Selector().Subscribe(h.OnAdapterChanged)
		app.OnSessionSaved(h.OnSessionSaved)
	}
	return d, nil
}

// Start begins the daemon's operation.
//
// The current credentials are applied first, then the credentials file is
// watched and the connection probed until ctx is cancelled or Stop is
// called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	ev, err := d.watcher.Current()
	if err != nil {
		d.config.Logger.Printf("Warning: failed to read credentials: %v", err)
	}
	d.handleAuth(ev)

	if err := d.watcher.Start(); err != nil {
		return fmt.Errorf("failed to watch credentials: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.watcher.Path())

	d.wg.Add(2)
	go d.watchAuthEvents()
	go d.probeLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. Pending changes get one last flush
// before the remote connection is closed.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")

		d.cancel()
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
		d.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d.signOut(ctx)

		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// Connected reports whether a remote connection is open.
func (d *Daemon) Connected() bool {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	return d.conn != nil
}

func (d *Daemon) watchAuthEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.config.Logger.Printf("Auth event: %s", ev.Kind)
			d.handleAuth(ev)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) handleAuth(ev auth.Event) {
	switch ev.Kind {
	case auth.SignedIn:
		if err := d.signIn(d.ctx, ev.Credentials); err != nil {
			d.config.Logger.Printf("Sign-in failed: %v", err)
		}
	case auth.SignedOut:
		d.signOut(d.ctx)
	}
}

func (d *Daemon) signIn(ctx context.Context, creds turso.Credentials) error {
	// New credentials replace any existing connection.
	d.signOut(ctx)

	conn, err := d.config.Connect(ctx, creds)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if _, err := d.app.SignIn(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}

	d.connMu.Lock()
	d.conn = conn
	d.online = true
	d.connMu.Unlock()
	d.config.Logger.Printf("Signed in to %s", creds.URL)

	if d.config.AutoMigrate {
		d.autoMigrate(ctx)
	}
	return nil
}

func (d *Daemon) signOut(ctx context.Context) {
	d.connMu.Lock()
	conn := d.conn
	d.conn = nil
	d.online = false
	d.connMu.Unlock()

	if conn == nil {
		return
	}
	d.app.SignOut(ctx)
	if err := conn.Close(); err != nil {
		d.config.Logger.Printf("Error closing remote connection: %v", err)
	}
	d.config.Logger.Println("Signed out")
}

func (d *Daemon) autoMigrate(ctx context.Context) {
	detection, err := d.app.Migrator().DetectLocalData(ctx)
	if err != nil {
		d.config.Logger.Printf("Migration detection failed: %v", err)
		return
	}
	if detection.SessionCount == 0 {
		return
	}

	d.config.Logger.Printf("Migrating %d local sessions", detection.SessionCount)
	var onProgress migrate.ProgressFunc
	if h := d.config.Dashboard; h != nil {
		onProgress = h.OnMigrationProgress
	}
	result, err := d.app.Migrate(ctx, onProgress)
	if err != nil {
		d.config.Logger.Printf("Migration failed: %v", err)
		return
	}
	d.config.Logger.Printf("Migration finished: %d migrated, %d skipped, %d errors",
		result.MigratedCount, result.SkippedCount, len(result.Errors))
}

func (d *Daemon) probeLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.Probe(d.ctx)
		}
	}
}

// Probe pings the remote connection once and updates the queue's online
// flag when reachability changes. It returns the reachability, false when
// signed out.
func (d *Daemon) Probe(ctx context.Context) bool {
	d.connMu.Lock()
	conn := d.conn
	wasOnline := d.online
	d.connMu.Unlock()
	if conn == nil {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.config.ProbeTimeout)
	err := conn.PingContext(pingCtx)
	cancel()
	online := err == nil

	d.connMu.Lock()
	if d.conn != conn {
		// Signed out or replaced while pinging.
		d.connMu.Unlock()
		return false
	}
	d.online = online
	d.connMu.Unlock()

	if online != wasOnline {
		if online {
			d.config.Logger.Println("Remote reachable again")
		} else {
			d.config.Logger.Printf("Remote unreachable: %v", err)
		}
		d.app.Queue().SetOnline(online)
	}
	return online
}
