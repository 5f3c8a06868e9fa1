package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/ui"
	"github.com/mschirtzinger/sessionvault/internal/vault/auth"
	"github.com/mschirtzinger/sessionvault/internal/vault/daemon"
	"github.com/mschirtzinger/sessionvault/internal/vault/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Follow the credentials file and switch between local and cloud storage
  2. Push queued session changes after a quiet period, retrying on failure
  3. Probe the cloud connection and pause syncing while it is unreachable
  4. Optionally migrate local sessions on sign-in (migration.auto)
  5. Serve the dashboard when --dashboard is set (or dashboard.port > 0)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		serve, _ := cmd.Flags().GetBool("dashboard")
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
			serve = true
		}
		serve = serve || port > 0

		// Sign-in is the daemon's job.
		offline = true
		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		watcher, err := auth.NewWatcher(cfg.CredentialsPath(), logs.Logger("auth"))
		if err != nil {
			return err
		}

		dcfg := daemon.DefaultConfig()
		dcfg.ProbeInterval = cfg.Sync.ProbeInterval
		dcfg.AutoMigrate = cfg.Migration.Auto
		dcfg.Logger = logs.Logger("daemon")

		var server *dashboard.Server
		if serve {
			server = dashboard.NewServer(&dashboard.Config{
				Port:    port,
				Backend: s.app,
				Logger:  logs.Logger("dashboard"),
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer server.Stop()
			dcfg.Dashboard = dashboard.NewHandler(server, logs.Logger("dashboard"))
		}

		d, err := daemon.NewWithConfig(s.app, watcher, dcfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Starting sync daemon...\n", ui.RenderAccent("●"))
		fmt.Fprintf(out, "   Local store: %s\n", cfg.LocalPath())
		fmt.Fprintf(out, "   Credentials: %s\n", watcher.Path())
		if server != nil {
			fmt.Fprintf(out, "   Dashboard:   http://%s (ws://%s/ws)\n", server.GetAddr(), server.GetAddr())
		}
		fmt.Fprintf(out, "\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the dashboard")
	daemonCmd.Flags().IntP("port", "p", 0, "Dashboard port (implies --dashboard; 0 picks a free port)")
	rootCmd.AddCommand(daemonCmd)
}
