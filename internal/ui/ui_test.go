package ui

import (
	"bytes"
	"testing"

	"github.com/muesli/termenv"
)

func TestConfigureColor_NonTerminalIsAscii(t *testing.T) {
	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("FORCE_COLOR", "")

	var buf bytes.Buffer
	if got := ConfigureColor(&buf); got != termenv.Ascii {
		t.Errorf("ConfigureColor(buffer) = %v, want Ascii", got)
	}
	if got := RenderStatus("error"); got != "error" {
		t.Errorf("RenderStatus() with Ascii profile = %q, want plain text", got)
	}
}

func TestConfigureColor_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("FORCE_COLOR", "1")

	if got := detectProfile(&bytes.Buffer{}); got != termenv.Ascii {
		t.Errorf("detectProfile() with NO_COLOR = %v, want Ascii", got)
	}
}

func TestTruthy(t *testing.T) {
	tests := map[string]bool{
		"":      false,
		"0":     false,
		"off":   false,
		"FALSE": false,
		"1":     true,
		"yes":   true,
	}
	for in, want := range tests {
		if got := truthy(in); got != want {
			t.Errorf("truthy(%q) = %v, want %v", in, got, want)
		}
	}
}
