// Command sv manages persisted interview sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/config"
	"github.com/mschirtzinger/sessionvault/internal/logging"
	"github.com/mschirtzinger/sessionvault/internal/ui"
)

var (
	configPath string
	dataDir    string
	verbose    bool
	offline    bool
	format     string

	cfg  *config.Config
	logs *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:   "sv",
	Short: "Session vault: local-first session storage with cloud sync",
	Long: `sv stores interview sessions in a local database and, once signed in,
keeps them in sync with a hosted database.

Signing in means placing a credentials file (see 'sv status' for its path);
the daemon follows that file and switches storage automatically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch format {
		case "text", "json", "yaml":
		default:
			return fmt.Errorf("unknown --format %q (want text, json or yaml)", format)
		}

		v := config.NewViper()
		if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
			return err
		}
		loaded, err := config.Load(v, configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		ui.ConfigureColor(os.Stdout)

		logs, err = logging.New(cfg.Log, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sessions", Title: "Sessions:"},
		&cobra.Group{ID: "sync", Title: "Sync & migration:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default: "+config.DefaultConfigPath()+")")
	flags.StringVar(&dataDir, "data-dir", "", "Data directory (overrides data_dir)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")
	flags.BoolVar(&offline, "offline", false, "Use only the local store even when signed in")
	flags.StringVar(&format, "format", "text", "Output format: text, json or yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
