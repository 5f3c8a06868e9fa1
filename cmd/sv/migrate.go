package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/ui"
	"github.com/mschirtzinger/sessionvault/internal/vault"
	"github.com/mschirtzinger/sessionvault/internal/vault/migrate"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "sync",
	Short:   "Copy local sessions to the cloud store",
	Long: `Copy every local session (and its document) to the remote store.

Sessions that already exist remotely are skipped. Each session is verified
after the copy. API keys never leave the local store.

Requires a valid credentials file. Use --backup to write a local backup first
and --clear to empty the local store once every session verified. --clear is
only accepted together with --backup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		yes, _ := cmd.Flags().GetBool("yes")
		backupPath, _ := cmd.Flags().GetString("backup")
		clearLocal, _ := cmd.Flags().GetBool("clear")
		if clearLocal && backupPath == "" {
			return fmt.Errorf("--clear requires --backup FILE")
		}

		s, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		if !s.app.Selector().Handle().IsRemote() {
			return fmt.Errorf("%w: write credentials to %s first", vault.ErrNotSignedIn, cfg.CredentialsPath())
		}

		detection, err := s.app.Migrator().DetectLocalData(ctx)
		if err != nil {
			return err
		}
		if detection.SessionCount == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No local sessions to migrate")
			return nil
		}

		ok, err := confirm(fmt.Sprintf("Copy %d local sessions to the cloud?", detection.SessionCount), yes)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}

		if backupPath != "" {
			if err := writeBackup(ctx, s, backupPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Backup written to %s\n", backupPath)
		}

		start := time.Now()
		result, err := s.app.Migrate(ctx, func(p migrate.Progress) {
			if format == "text" && p.Current != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  [%d/%d] %s\n", p.Completed, p.Total, p.Current)
			}
		})
		if err != nil {
			return err
		}

		if clearLocal {
			if !result.Success {
				return fmt.Errorf("migration incomplete; local sessions kept (%d errors)", len(result.Errors))
			}
			if err := s.app.Migrator().ClearLocalSessionsAfterMigration(ctx); err != nil {
				return err
			}
		}

		return emit(cmd.OutOrStdout(), result, func(w io.Writer) {
			mark := ui.RenderPass("✓")
			if !result.Success {
				mark = ui.RenderFail("✗")
			}
			fmt.Fprintf(w, "%s Migration finished in %v\n", mark, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(w, "   Migrated: %d\n", result.MigratedCount)
			fmt.Fprintf(w, "   Skipped:  %d\n", result.SkippedCount)
			for _, e := range result.Errors {
				fmt.Fprintf(w, "   %s %s\n", ui.RenderWarn("!"), e)
			}
			if clearLocal && result.Success {
				fmt.Fprintln(w, "   Local sessions cleared")
			}
		})
	},
}

func writeBackup(ctx context.Context, s *session, path string) error {
	b, err := s.app.Migrator().GetLocalSessionBackup(ctx)
	if err != nil {
		return err
	}
	return migrate.WriteBackupFile(path, b)
}

var backupCmd = &cobra.Command{
	Use:     "backup FILE",
	GroupID: "sync",
	Short:   "Write all local sessions and documents to a backup file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offline = true
		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		if err := writeBackup(cmd.Context(), s, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Backup written to %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:     "restore FILE",
	GroupID: "sync",
	Short:   "Restore local sessions from a backup file",
	Long: `Restore sessions and documents from a backup into the local store.

Sessions are written verbatim, keeping their original timestamps; existing
sessions with the same ID are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		b, err := migrate.ReadBackupFile(args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(fmt.Sprintf("Restore %d sessions into the local store?", len(b.Sessions)), yes)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}

		offline = true
		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		if err := s.app.Migrator().RestoreLocalSessions(cmd.Context(), b); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Restored %d sessions and %d documents\n",
			ui.RenderPass("✓"), len(b.Sessions), len(b.Documents))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
	migrateCmd.Flags().String("backup", "", "Write a local backup to this file before migrating")
	migrateCmd.Flags().Bool("clear", false, "Clear local sessions after a fully verified migration")
	restoreCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	rootCmd.AddCommand(migrateCmd, backupCmd, restoreCmd)
}
