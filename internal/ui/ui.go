// Package ui styles CLI output.
//
// Colour is enabled only for terminals, and respects NO_COLOR, CLICOLOR=0,
// TERM=dumb and CLICOLOR_FORCE / FORCE_COLOR.
package ui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8f98"))
)

// ConfigureColor picks the colour profile for w and applies it globally.
func ConfigureColor(w io.Writer) termenv.Profile {
	profile := detectProfile(w)
	lipgloss.SetColorProfile(profile)
	return profile
}

func detectProfile(w io.Writer) termenv.Profile {
	if colorDisabled() {
		return termenv.Ascii
	}
	if colorForced() {
		return termenv.EnvColorProfile()
	}
	if IsTerminal(w) {
		return termenv.NewOutput(w).ColorProfile()
	}
	return termenv.Ascii
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func colorDisabled() bool {
	if termenv.EnvNoColor() {
		return true
	}
	if v, ok := os.LookupEnv("CLICOLOR"); ok && strings.TrimSpace(v) == "0" {
		return true
	}
	if v, ok := os.LookupEnv("TERM"); ok && strings.EqualFold(strings.TrimSpace(v), "dumb") {
		return true
	}
	return false
}

func colorForced() bool {
	for _, key := range []string{"CLICOLOR_FORCE", "FORCE_COLOR"} {
		if v, ok := os.LookupEnv(key); ok && truthy(v) {
			return true
		}
	}
	return false
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

// RenderAccent highlights identifiers and headings.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders success text.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders warnings.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders errors.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders secondary detail.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderStatus colours a status word by its meaning.
func RenderStatus(status string) string {
	switch status {
	case "synced", "complete", "local", "remote":
		return RenderPass(status)
	case "pending", "syncing", "offline", "migrating", "verifying", "detecting":
		return RenderWarn(status)
	case "error":
		return RenderFail(status)
	}
	return status
}
