package stack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sznuper/stackback/internal/command"
)

// Spec identifies a compose stack by name and directory.
type Spec struct {
	Name       string
	Path       string // absolute directory holding the compose file
	ArchiveDir string // where archives of this stack are written
}

// Error is returned by Stop and Start.
type Error struct {
	Op     string // "stop" or "start"
	Stack  string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Stack, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Controller brings compose stacks down and up through an external runtime.
type Controller struct {
	runner       command.Runner
	compose      []string // e.g. ["docker", "compose"]
	stopTimeout  time.Duration
	startTimeout time.Duration
	logger       *slog.Logger
}

// NewController creates a Controller. compose is the runtime's compose
// invocation split into name and leading args.
func NewController(runner command.Runner, compose []string, stopTimeout, startTimeout time.Duration, logger *slog.Logger) *Controller {
	return &Controller{
		runner:       runner,
		compose:      compose,
		stopTimeout:  stopTimeout,
		startTimeout: startTimeout,
		logger:       logger,
	}
}

// Stop runs "compose down" in the stack directory.
func (c *Controller) Stop(ctx context.Context, s Spec) error {
	return c.invoke(ctx, "stop", s, c.stopTimeout, "down")
}

// Start runs "compose up -d" in the stack directory.
func (c *Controller) Start(ctx context.Context, s Spec) error {
	return c.invoke(ctx, "start", s, c.startTimeout, "up", "-d")
}

func (c *Controller) invoke(ctx context.Context, op string, s Spec, timeout time.Duration, args ...string) error {
	log := c.logger.With("stack", s.Name, "op", op)

	info, err := os.Stat(s.Path)
	if err != nil {
		return &Error{Op: op, Stack: s.Name, Err: fmt.Errorf("directory %s does not exist", s.Path)}
	}
	if !info.IsDir() {
		return &Error{Op: op, Stack: s.Name, Err: fmt.Errorf("%s is not a directory", s.Path)}
	}

	opts := command.Opts{
		Name:    c.compose[0],
		Args:    append(append([]string{}, c.compose[1:]...), args...),
		Dir:     s.Path,
		Timeout: timeout,
	}
	log.Debug("invoking runtime", "command", opts.String(), "timeout", timeout)

	res, err := c.runner.Run(ctx, opts)
	if err != nil {
		e := &Error{Op: op, Stack: s.Name, Err: err}
		if res != nil {
			e.Stderr = strings.TrimSpace(res.Stderr)
		}
		return e
	}
	for _, line := range res.Lines() {
		log.Debug("runtime output", "line", line)
	}
	if !res.Success() {
		return &Error{
			Op:     op,
			Stack:  s.Name,
			Stderr: strings.TrimSpace(res.Stderr),
			Err:    fmt.Errorf("%q exited with status %d", opts.String(), res.ExitCode),
		}
	}

	log.Debug("runtime finished", "duration", res.Duration)
	return nil
}
