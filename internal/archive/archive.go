package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sznuper/stackback/internal/command"
	"github.com/sznuper/stackback/internal/disk"
	"github.com/sznuper/stackback/internal/stack"
)

// Ext is the extension of every archive this package writes.
const Ext = ".tar"

const timestampLayout = "20060102_150405"

// ErrInsufficientSpace is returned when the destination filesystem cannot
// hold the estimated archive size.
var ErrInsufficientSpace = errors.New("insufficient space at destination")

// Artifact describes a completed archive.
type Artifact struct {
	Path string
	Size int64
}

// Error is returned by Archive. Any partially written archive has been
// removed by the time it is returned.
type Error struct {
	Stack  string
	Path   string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("archive %s: %v", e.Stack, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// FileName returns the archive file name for a stack at ts. Names sort
// lexicographically by creation time for a given stack.
func FileName(stackName string, ts time.Time) string {
	return stackName + "_" + ts.Format(timestampLayout) + Ext
}

// Archiver snapshots stack directories into uncompressed tar files.
type Archiver struct {
	runner  command.Runner
	tar     string
	timeout time.Duration
	space   func(path string) (disk.Usage, error)
	logger  *slog.Logger
}

// New creates an Archiver that invokes the tar binary at tarPath.
func New(runner command.Runner, tarPath string, timeout time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		runner:  runner,
		tar:     tarPath,
		timeout: timeout,
		space:   disk.Stat,
		logger:  logger,
	}
}

// WithSpaceFunc replaces the free-space probe.
func (a *Archiver) WithSpaceFunc(fn func(path string) (disk.Usage, error)) *Archiver {
	a.space = fn
	return a
}

// Archive writes <destDir>/<name>_<ts>.tar containing the stack directory.
func (a *Archiver) Archive(ctx context.Context, s stack.Spec, destDir string, ts time.Time) (*Artifact, error) {
	log := a.logger.With("stack", s.Name)

	dest, err := filepath.Abs(filepath.Join(destDir, FileName(s.Name, ts)))
	if err != nil {
		return nil, &Error{Stack: s.Name, Err: fmt.Errorf("resolving destination: %w", err)}
	}
	fail := func(err error, stderr string) (*Artifact, error) {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn("removing partial archive failed", "path", dest, "error", rmErr)
		}
		return nil, &Error{Stack: s.Name, Path: dest, Stderr: stderr, Err: err}
	}

	if _, err := os.Stat(dest); err == nil {
		return nil, &Error{Stack: s.Name, Path: dest, Err: fmt.Errorf("%s already exists", dest)}
	}
	if _, err := os.ReadDir(s.Path); err != nil {
		return nil, &Error{Stack: s.Name, Path: dest, Err: fmt.Errorf("source unreadable: %w", err)}
	}

	need := estimateSize(s.Path)
	if usage, err := a.space(destDir); err != nil {
		log.Warn("free space probe failed", "dir", destDir, "error", err)
	} else if uint64(need) > usage.Free {
		return nil, &Error{
			Stack: s.Name,
			Path:  dest,
			Err:   fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, need, usage.Free),
		}
	}

	opts := command.Opts{
		Name:    a.tar,
		Args:    []string{"-c", "-f", dest, "-C", filepath.Dir(s.Path), filepath.Base(s.Path)},
		Timeout: a.timeout,
	}
	log.Info("archiving", "source", s.Path, "dest", dest, "estimated_bytes", need)

	res, err := a.runner.Run(ctx, opts)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		return fail(err, stderr)
	}
	if !res.Success() {
		return fail(fmt.Errorf("tar exited with status %d", res.ExitCode), strings.TrimSpace(res.Stderr))
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fail(fmt.Errorf("reading archive size: %w", err), "")
	}

	log.Info("archive written", "path", dest, "bytes", info.Size(), "duration", res.Duration)
	return &Artifact{Path: dest, Size: info.Size()}, nil
}

// estimateSize sums regular file sizes below root. Unreadable subtrees are
// skipped; tar reports them.
func estimateSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
