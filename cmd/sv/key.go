package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/sessionvault/internal/ui"
	"github.com/mschirtzinger/sessionvault/internal/vault/local"
	"github.com/mschirtzinger/sessionvault/internal/vault/secret"
)

var keyCmd = &cobra.Command{
	Use:     "key",
	GroupID: "setup",
	Short:   "Manage encrypted provider API keys (local only)",
	Long: `Manage provider API keys. Keys are encrypted with a passphrase and stored
only in the local database; they are never migrated or synced.

The passphrase is prompted for, or read from $` + passphraseEnv + `.`,
}

func openLocal() (*local.Store, error) {
	store, err := local.Open(cfg.LocalPath(), local.WithLogger(logs.Logger("local")))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return store, nil
}

var keySetCmd = &cobra.Command{
	Use:   "set PROVIDER",
	Short: "Encrypt and store an API key (read from stdin when piped)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, err := readAPIKey()
		if err != nil {
			return err
		}
		pass, err := passphrase("Passphrase to encrypt the key")
		if err != nil {
			return err
		}
		blob, err := secret.Encrypt(pass, apiKey)
		if err != nil {
			return err
		}

		store, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SaveSecret(cmd.Context(), args[0], blob); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Stored key for %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
		return nil
	},
}

// readAPIKey takes the key from piped stdin or a masked prompt.
func readAPIKey() (string, error) {
	if !ui.IsTerminal(os.Stdin) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read key from stdin: %w", err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("empty API key on stdin")
		}
		return key, nil
	}

	return maskedInput("API key")
}

var keyGetCmd = &cobra.Command{
	Use:   "get PROVIDER",
	Short: "Decrypt and print an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		sec, err := store.GetSecret(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sec == nil {
			return fmt.Errorf("no key stored for %s", args[0])
		}

		pass, err := passphrase("Passphrase")
		if err != nil {
			return err
		}
		plain, err := secret.Decrypt(pass, sec.EncryptedBlob)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), plain)
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear PROVIDER",
	Short: "Remove a stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ClearSecret(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Cleared key for %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with a stored key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocal()
		if err != nil {
			return err
		}
		defer store.Close()

		secrets, err := store.ListSecrets(cmd.Context())
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), secrets, func(w io.Writer) {
			if len(secrets) == 0 {
				fmt.Fprintln(w, "No keys stored")
				return
			}
			for _, sec := range secrets {
				used := "never used"
				if sec.LastUsedAt != nil {
					used = "last used " + sec.LastUsedAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%-12s %s\n", ui.RenderAccent(sec.Provider), ui.RenderMuted(used))
			}
		})
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyGetCmd, keyClearCmd, keyListCmd)
	rootCmd.AddCommand(keyCmd)
}
