package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/ui"
	"github.com/mschirtzinger/sessionvault/internal/vault/loadtest"
	"github.com/mschirtzinger/sessionvault/internal/vault/local"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Measure local store latency under concurrent load",
	Long: `Run a concurrent load test against a scratch local store.

Writers each answer questions on their own session while readers list and
fetch sessions. The scratch database is deleted afterwards unless --keep is
set. Your real sessions are never touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lcfg := loadtest.DefaultConfig()
		lcfg.Sessions, _ = cmd.Flags().GetInt("sessions")
		lcfg.Clients, _ = cmd.Flags().GetInt("clients")
		lcfg.AnswersPerClient, _ = cmd.Flags().GetInt("answers")
		lcfg.Readers, _ = cmd.Flags().GetInt("readers")
		keep, _ := cmd.Flags().GetBool("keep")

		dir, err := os.MkdirTemp("", "sv-bench-*")
		if err != nil {
			return err
		}
		if !keep {
			defer os.RemoveAll(dir)
		}

		path := filepath.Join(dir, "bench.db")
		store, err := local.Open(path, local.WithLogger(logs.Logger("local")))
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Fprintf(cmd.ErrOrStderr(), "%s Running %d writers x %d answers, %d readers...\n",
			ui.RenderAccent("●"), lcfg.Clients, lcfg.AnswersPerClient, lcfg.Readers)
		report, err := loadtest.Run(cmd.Context(), store, lcfg)
		if err != nil {
			return err
		}
		if keep {
			fmt.Fprintf(cmd.ErrOrStderr(), "Scratch database kept at %s\n", path)
		}
		return emit(cmd.OutOrStdout(), report, func(w io.Writer) { report.Print(w) })
	},
}

func init() {
	d := loadtest.DefaultConfig()
	benchCmd.Flags().Int("sessions", d.Sessions, "Sessions to seed before the run")
	benchCmd.Flags().Int("clients", d.Clients, "Concurrent writers")
	benchCmd.Flags().Int("answers", d.AnswersPerClient, "Answers saved by each writer")
	benchCmd.Flags().Int("readers", d.Readers, "Concurrent readers")
	benchCmd.Flags().Bool("keep", false, "Keep the scratch database")
	rootCmd.AddCommand(benchCmd)
}
