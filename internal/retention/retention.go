package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Entry is an archive file found in a backup directory.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// DeletionError records a file that could not be removed.
type DeletionError struct {
	Path string
	Err  error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("deleting %s: %v", e.Path, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

// Skipped is an expired entry that was not deleted.
type Skipped struct {
	Entry Entry
	Err   *DeletionError
}

// Outcome summarizes one retention pass.
type Outcome struct {
	Deleted    []Entry
	Skipped    []Skipped
	FreedBytes int64
}

// Merge appends other to o, preserving order.
func (o *Outcome) Merge(other Outcome) {
	o.Deleted = append(o.Deleted, other.Deleted...)
	o.Skipped = append(o.Skipped, other.Skipped...)
	o.FreedBytes += other.FreedBytes
}

// Manager deletes archives older than a retention threshold.
type Manager struct {
	ext       string
	remove    func(path string) error
	protected map[string]bool
	logger    *slog.Logger
}

// New creates a Manager that considers files ending in ext.
func New(ext string, logger *slog.Logger) *Manager {
	return &Manager{
		ext:       ext,
		remove:    os.Remove,
		protected: make(map[string]bool),
		logger:    logger,
	}
}

// WithRemoveFunc replaces the file removal function.
func (m *Manager) WithRemoveFunc(fn func(path string) error) *Manager {
	m.remove = fn
	return m
}

// Protect excludes path from deletion regardless of its age.
func (m *Manager) Protect(path string) {
	m.protected[filepath.Clean(path)] = true
}

// Expired reports whether a file with the given modification time is past
// retention. A file exactly retentionDays old is kept.
func Expired(modTime, now time.Time, retentionDays int) bool {
	return now.Sub(modTime) > time.Duration(retentionDays)*day
}

// Plan lists the files in dir (non-recursive) that Enforce would delete,
// oldest first. A missing directory yields no entries.
func (m *Manager) Plan(dir string, retentionDays int, now time.Time) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var expired []Entry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || !strings.HasSuffix(de.Name(), m.ext) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			m.logger.Warn("stat failed, skipping", "file", de.Name(), "error", err)
			continue
		}
		path := filepath.Join(dir, de.Name())
		if m.protected[filepath.Clean(path)] {
			continue
		}
		if !Expired(info.ModTime(), now, retentionDays) {
			continue
		}
		expired = append(expired, Entry{Path: path, Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(expired, func(i, j int) bool {
		a, b := expired[i], expired[j]
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
		return a.Path < b.Path
	})
	return expired, nil
}

// Enforce deletes every expired archive in dir. A failed deletion is
// recorded in Outcome.Skipped and does not stop the pass. The returned error
// is non-nil only when dir cannot be listed.
func (m *Manager) Enforce(dir string, retentionDays int, now time.Time) (Outcome, error) {
	var out Outcome

	expired, err := m.Plan(dir, retentionDays, now)
	if err != nil {
		return out, err
	}

	for _, e := range expired {
		if err := m.remove(e.Path); err != nil {
			de := &DeletionError{Path: e.Path, Err: err}
			m.logger.Warn("deletion failed", "file", e.Path, "error", err)
			out.Skipped = append(out.Skipped, Skipped{Entry: e, Err: de})
			continue
		}
		m.logger.Info("deleted", "file", e.Path, "bytes", e.Size, "age", now.Sub(e.ModTime).Round(time.Second))
		out.Deleted = append(out.Deleted, e)
		out.FreedBytes += e.Size
	}

	return out, nil
}
