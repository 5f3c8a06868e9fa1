package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/mschirtzinger/sessionvault/internal/ui"
)

// passphraseEnv lets scripts supply the key passphrase without a prompt.
const passphraseEnv = "SV_PASSPHRASE"

// confirm asks a yes/no question. assumeYes skips the prompt; a
// non-interactive stdin without assumeYes is an error.
func confirm(title string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !ui.IsTerminal(os.Stdin) {
		return false, fmt.Errorf("%s: pass --yes to confirm non-interactively", strings.TrimSuffix(title, "?"))
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// passphrase reads the key passphrase from the environment or a masked
// prompt.
func passphrase(title string) (string, error) {
	if v := os.Getenv(passphraseEnv); v != "" {
		return v, nil
	}
	if !ui.IsTerminal(os.Stdin) {
		return "", fmt.Errorf("no terminal for passphrase prompt; set %s", passphraseEnv)
	}
	return maskedInput(title)
}

func maskedInput(title string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&value).
		Run()
	if err != nil {
		return "", err
	}
	return value, nil
}

// parseSince accepts natural language ("yesterday", "3 days ago") or a
// YYYY-MM-DD date, relative to now.
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.ParseInLocation("2006-01-02", text, now.Location()); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", text)
	}
	return r.Time, nil
}
