package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the output of executing an external command.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

// Success reports whether the command exited with status zero.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Lines returns the non-empty stdout lines.
func (r *Result) Lines() []string {
	var lines []string
	for _, line := range strings.Split(r.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Opts configures command execution.
type Opts struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
	Env     []string // appended to the inherited environment
}

func (o Opts) String() string {
	return strings.Join(append([]string{o.Name}, o.Args...), " ")
}

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

// Runner executes external commands. ExecRunner is the production
// implementation; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, opts Opts) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, opts Opts) (*Result, error) {
	return Exec(ctx, opts)
}

// Exec runs a command and captures its output.
// Non-zero exit codes are captured (not treated as errors).
// Timeouts are treated as errors.
func Exec(ctx context.Context, opts Opts) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, opts.Name, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	// Grandchildren (compose plugins) may hold the pipes open after a kill.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.ExitCode = -1
			return result, fmt.Errorf("%s: %w after %s", opts.Name, ErrTimeout, opts.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("executing %s: %w", opts.Name, err)
	}

	return result, nil
}
