package console

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		c := New("IPTV Auto-Config", strings.NewReader(tt.input), &out, false)
		if got := c.Confirm("Auto-configure IPTV?"); got != tt.want {
			t.Errorf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Auto-configure IPTV?") {
			t.Errorf("message not printed: %q", out.String())
		}
	}
}

func TestAssumeYes(t *testing.T) {
	var out bytes.Buffer
	c := New("T", strings.NewReader(""), &out, true)
	if !c.Confirm("go?") {
		t.Error("expected assumed yes")
	}
	if c.AskRestart("Setup Complete!") {
		t.Error("restart must not be assumed")
	}
	if !strings.Contains(out.String(), "Setup Complete!") {
		t.Error("summary not printed")
	}
}

func TestProgress(t *testing.T) {
	var out bytes.Buffer
	c := New("T", strings.NewReader(""), &out, false)
	c.Progress(50, "Saving playlists...")
	c.Notify("Found 3 channels")
	c.Progress(150, "Complete!")

	s := out.String()
	if !strings.Contains(s, "[###############               ]  50% Saving playlists...") {
		t.Errorf("unexpected half bar: %q", s)
	}
	if !strings.Contains(s, "Saving playlists...\n[T] Found 3 channels\n") {
		t.Errorf("notification should start on a fresh line: %q", s)
	}
	if !strings.HasSuffix(s, "100% Complete!\n") {
		t.Errorf("expected clamped final line: %q", s)
	}
}

func TestAlert(t *testing.T) {
	var out bytes.Buffer
	New("T", strings.NewReader(""), &out, false).Alert("Failed to configure PVR.")
	if strings.Count(out.String(), strings.Repeat("=", 60)) != 3 {
		t.Errorf("expected framed alert: %q", out.String())
	}
}
