package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetup_FileAndRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stackback.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	l, err := Setup(Options{Level: slog.LevelInfo, File: path, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	l.Info("stopping stack", "stack", "web")
	l.Debug("hidden")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "previous run\n") {
		t.Error("log file was not appended to")
	}
	if !strings.Contains(content, "stack=web") {
		t.Errorf("log file missing record:\n%s", content)
	}
	if strings.Contains(content, "hidden") {
		t.Error("debug record written at info level")
	}

	lines := l.Recorder.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], `msg="stopping stack"`) {
		t.Errorf("recorder lines = %q", lines)
	}

	// A buffer is not a terminal and verbose is off.
	if stderr.Len() != 0 {
		t.Errorf("stderr = %q, want empty", stderr.String())
	}
}

func TestSetup_Verbose(t *testing.T) {
	var stderr bytes.Buffer
	l, err := Setup(Options{Level: slog.LevelDebug, Stderr: &stderr, Verbose: true})
	if err != nil {
		t.Fatal(err)
	}
	l.With("run_id", "abc").Debug("detail")
	if !strings.Contains(stderr.String(), "run_id=abc") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRecorder_PartialWrites(t *testing.T) {
	var r Recorder
	r.Write([]byte("first li"))
	r.Write([]byte("ne\nsecond\nthi"))
	if got := r.Lines(); len(got) != 2 || got[0] != "first line" || got[1] != "second" {
		t.Errorf("lines = %q", got)
	}
	r.Write([]byte("rd\n"))
	if got := r.Lines(); len(got) != 3 || got[2] != "third" {
		t.Errorf("lines = %q", got)
	}

	r.Reset()
	if got := r.Lines(); len(got) != 0 {
		t.Errorf("lines after reset = %q", got)
	}
}
