package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/ui"
	"github.com/mschirtzinger/sessionvault/internal/vault"
	"github.com/mschirtzinger/sessionvault/internal/vault/migrate"
)

type statusReport struct {
	vault.Status
	LocalPath       string             `json:"local_path"`
	CredentialsPath string             `json:"credentials_path"`
	Local           *migrate.Detection `json:"local"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show storage, sync and migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		detection, err := s.app.Migrator().DetectLocalData(ctx)
		if err != nil {
			return err
		}
		report := statusReport{
			Status:          s.app.Status(),
			LocalPath:       cfg.LocalPath(),
			CredentialsPath: cfg.CredentialsPath(),
			Local:           detection,
		}

		return emit(cmd.OutOrStdout(), report, func(w io.Writer) {
			fmt.Fprintf(w, "\n%s Session Vault Status\n\n", ui.RenderAccent("●"))
			fmt.Fprintf(w, "Adapter:      %s\n", ui.RenderStatus(string(report.Adapter)))
			fmt.Fprintf(w, "Sync:         %s", ui.RenderStatus(string(report.Sync.Status)))
			if report.Sync.Pending > 0 {
				fmt.Fprintf(w, " (%d pending)", report.Sync.Pending)
			}
			fmt.Fprintln(w)
			if report.Sync.Error != "" {
				fmt.Fprintf(w, "Last error:   %s\n", ui.RenderFail(report.Sync.Error))
			}
			fmt.Fprintf(w, "Local store:  %s\n", report.LocalPath)
			fmt.Fprintf(w, "Sessions:     %d\n", detection.SessionCount)
			if detection.NewestSession != nil {
				fmt.Fprintf(w, "Newest:       %s\n", detection.NewestSession.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(w, "Credentials:  %s\n", ui.RenderMuted(report.CredentialsPath))
			fmt.Fprintln(w)
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
