package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/ui"
	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	GroupID: "sessions",
	Short:   "Create, inspect and delete sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new empty session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, _ := cmd.Flags().GetString("stage")

		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		sess := &schema.Session{
			ID:           schema.NewSessionID(),
			CurrentStage: stage,
			Responses:    schema.Responses{},
		}
		sess.SetDefaults(time.Now())
		if _, err := s.app.SaveSession(cmd.Context(), sess); err != nil {
			return err
		}

		return emit(cmd.OutOrStdout(), sess, func(w io.Writer) {
			fmt.Fprintf(w, "%s Created session %s\n", ui.RenderPass("✓"), ui.RenderAccent(sess.ID))
		})
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [ID]",
	Short: "Show a session (default: the most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		var sess *schema.Session
		if len(args) == 1 {
			sess, err = s.app.GetSession(ctx, args[0])
		} else {
			sess, err = s.app.GetLatestSession(ctx)
		}
		if err != nil {
			return err
		}
		if sess == nil {
			if len(args) == 1 {
				return fmt.Errorf("session %s not found", args[0])
			}
			return fmt.Errorf("no sessions yet")
		}

		return emit(cmd.OutOrStdout(), sess, func(w io.Writer) { printSession(w, sess) })
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		sinceText, _ := cmd.Flags().GetString("since")

		s, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		var sessions []*schema.Session
		if sinceText == "" {
			sessions, err = s.app.ListSessions(ctx, limit)
		} else {
			since, perr := parseSince(sinceText, time.Now())
			if perr != nil {
				return perr
			}
			sessions, err = listSince(ctx, s, since, limit)
		}
		if err != nil {
			return err
		}

		return emit(cmd.OutOrStdout(), sessions, func(w io.Writer) {
			if len(sessions) == 0 {
				fmt.Fprintln(w, "No sessions found")
				return
			}
			for _, sess := range sessions {
				done := ""
				if sess.IsComplete {
					done = ui.RenderPass(" complete")
				}
				fmt.Fprintf(w, "%s  %-16s %2d answers  %s%s\n",
					ui.RenderAccent(sess.ID),
					sess.CurrentStage,
					len(sess.Responses),
					ui.RenderMuted(sess.LastUpdatedAt.Local().Format("2006-01-02 15:04")),
					done)
			}
		})
	},
}

// listSince filters by LastUpdatedAt. The local store answers directly;
// the remote store is listed and filtered here.
func listSince(ctx context.Context, s *session, since time.Time, limit int) ([]*schema.Session, error) {
	if !s.app.Selector().Handle().IsRemote() {
		return s.app.Local().SessionsSince(ctx, since, limit)
	}
	all, err := s.app.ListSessions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*schema.Session, 0, len(all))
	for _, sess := range all {
		if !sess.LastUpdatedAt.Before(since) {
			out = append(out, sess)
		}
	}
	return out, nil
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save FILE",
	Short: "Save a session from a JSON file ('-' for stdin)",
	Long: `Save a session from its JSON form, as printed by 'sv session show --format json'.

Responses may be strings, booleans or lists of strings. The session_id field
is required unless --id is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")

		data, err := readInput(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		var sess schema.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to parse session: %w", err)
		}
		if id != "" {
			sess.ID = id
		}

		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		if _, err := s.app.SaveSession(cmd.Context(), &sess); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), &sess, func(w io.Writer) {
			fmt.Fprintf(w, "%s Saved session %s (%d answers)\n",
				ui.RenderPass("✓"), ui.RenderAccent(sess.ID), len(sess.Responses))
		})
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a session and its document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		ok, err := confirm(fmt.Sprintf("Delete session %s?", args[0]), yes)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}

		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		if err := s.app.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted session %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func printSession(w io.Writer, sess *schema.Session) {
	fmt.Fprintf(w, "\n%s %s\n\n", ui.RenderAccent("Session"), sess.ID)
	fmt.Fprintf(w, "Stage:     %s (question %d)\n", sess.CurrentStage, sess.CurrentQuestionIndex)
	fmt.Fprintf(w, "Complete:  %v\n", sess.IsComplete)
	if sess.StartedAt != nil {
		fmt.Fprintf(w, "Started:   %s\n", sess.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Updated:   %s\n", sess.LastUpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if sess.SelectedProvider != "" {
		fmt.Fprintf(w, "Model:     %s/%s\n", sess.SelectedProvider, sess.SelectedModel)
	}

	if len(sess.Responses) > 0 {
		fmt.Fprintf(w, "\nResponses:\n")
		keys := make([]string, 0, len(sess.Responses))
		for k := range sess.Responses {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-20s %s\n", k, sess.Responses[k])
		}
	}
	fmt.Fprintln(w)
}

func init() {
	sessionNewCmd.Flags().String("stage", "", "Initial stage")
	sessionListCmd.Flags().IntP("limit", "n", 20, "Maximum sessions to list")
	sessionListCmd.Flags().String("since", "", `Only sessions updated since (e.g. "yesterday", "3 days ago", 2026-01-31)`)
	sessionSaveCmd.Flags().String("id", "", "Override the session ID")
	sessionDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	sessionCmd.AddCommand(sessionNewCmd, sessionShowCmd, sessionListCmd, sessionSaveCmd, sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
