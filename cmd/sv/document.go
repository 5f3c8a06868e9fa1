package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/ui"
)

var documentCmd = &cobra.Command{
	Use:     "document",
	GroupID: "sessions",
	Short:   "Read and write a session's generated document",
}

var documentShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Print the document attached to a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		doc, err := s.app.GetDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("session %s has no document", args[0])
		}
		return emit(cmd.OutOrStdout(), doc, func(w io.Writer) {
			fmt.Fprint(w, doc.Content)
			if n := len(doc.Content); n > 0 && doc.Content[n-1] != '\n' {
				fmt.Fprintln(w)
			}
		})
	},
}

var documentSaveCmd = &cobra.Command{
	Use:   "save SESSION_ID FILE",
	Short: "Attach a document to a session ('-' reads stdin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, _ := cmd.Flags().GetString("template")

		content, err := readInput(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}

		s, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		id, err := s.app.SaveDocument(cmd.Context(), args[0], templateID, string(content))
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), map[string]string{"id": id, "session_id": args[0]}, func(w io.Writer) {
			fmt.Fprintf(w, "%s Saved document %s for session %s\n", ui.RenderPass("✓"), id, ui.RenderAccent(args[0]))
		})
	},
}

func init() {
	documentSaveCmd.Flags().StringP("template", "t", "", "Template the document was generated from (required)")
	_ = documentSaveCmd.MarkFlagRequired("template")

	documentCmd.AddCommand(documentShowCmd, documentSaveCmd)
	rootCmd.AddCommand(documentCmd)
}
