package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Options configure Setup.
type Options struct {
	Level  slog.Level
	File   string    // append-only log file; empty disables
	Stderr io.Writer // defaults to os.Stderr
	// Verbose forces stderr output even when it is not a terminal.
	Verbose bool
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// Logger bundles the slog logger with the resources behind it.
type Logger struct {
	*slog.Logger
	Recorder *Recorder
	file     *os.File
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Setup creates the logger.
func Setup(opts Options) (*Logger, error) {
	hopts := &slog.HandlerOptions{Level: opts.Level}
	rec := &Recorder{}
	handlers := []slog.Handler{slog.NewTextHandler(rec, hopts)}

	l := &Logger{Recorder: rec}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewTextHandler(f, hopts))
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if opts.Verbose || isTerminal(stderr) {
		handlers = append(handlers, slog.NewTextHandler(stderr, hopts))
	}

	l.Logger = slog.New(slog.NewMultiHandler(handlers...))
	return l, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Recorder keeps formatted log lines in memory.
type Recorder struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf.Write(p)
	for {
		line, err := r.buf.ReadString('\n')
		if err != nil {
			// Partial line; keep it for the next write.
			r.buf.Reset()
			r.buf.WriteString(line)
			break
		}
		r.lines = append(r.lines, strings.TrimRight(line, "\n"))
	}
	return len(p), nil
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Reset discards recorded lines. The scheduler calls it before every run.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
	r.buf.Reset()
}
