package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/config"
	"github.com/mschirtzinger/sessionvault/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect and initialize configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	// Replaces the root hook: the file being created need not exist yet.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", ui.RenderPass("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return emit(cmd.OutOrStdout(), cfg, func(w io.Writer) {
			fmt.Fprintf(w, "data_dir               %s\n", cfg.DataDir)
			fmt.Fprintf(w, "local.path             %s\n", cfg.LocalPath())
			fmt.Fprintf(w, "auth.credentials_file  %s\n", cfg.CredentialsPath())
			fmt.Fprintf(w, "sync.quiet_period      %v\n", cfg.Sync.QuietPeriod)
			fmt.Fprintf(w, "sync.base_retry_delay  %v\n", cfg.Sync.BaseRetryDelay)
			fmt.Fprintf(w, "sync.max_retries       %d\n", cfg.Sync.MaxRetries)
			fmt.Fprintf(w, "sync.probe_interval    %v\n", cfg.Sync.ProbeInterval)
			fmt.Fprintf(w, "dashboard.port         %d\n", cfg.Dashboard.Port)
			fmt.Fprintf(w, "migration.auto         %v\n", cfg.Migration.Auto)
			fmt.Fprintf(w, "log.file               %s\n", cfg.Log.File)
		})
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
