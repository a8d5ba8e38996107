package report

import (
	"strings"
	"time"

	"github.com/sznuper/stackback/internal/disk"
	"github.com/sznuper/stackback/internal/retention"
	"github.com/sznuper/stackback/internal/stack"
)

// Status is the run-level outcome.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// StackResult captures what happened to one stack during a run. Errors are
// stored rather than returned so the report always has every stack.
type StackResult struct {
	Stack       stack.Spec
	Stopped     bool
	Archived    bool
	Started     bool
	ArchivePath string
	ArchiveSize int64
	Err         error
	ErrStage    string   // first failing phase: "stop", "archive", "start"
	States      []string // phase transitions in order, ending in DONE
}

// ErrorMessage returns the error text, or "" if the stack succeeded.
func (r StackResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunReport aggregates everything a run produced.
type RunReport struct {
	RunID    string
	Hostname string
	Start    time.Time
	End      time.Time
	Stacks   []StackResult

	RetentionDays int
	Retention     retention.Outcome
	RetentionErrs []string // directories that could not be scanned

	DiskPath string
	Disk     disk.Usage
	DiskErr  string

	Log []string
}

// Status is FAILED if any stack recorded an error.
func (r *RunReport) Status() Status {
	for _, s := range r.Stacks {
		if s.ErrorMessage() != "" {
			return StatusFailed
		}
	}
	return StatusSuccess
}

// Failed returns the number of stacks with errors.
func (r *RunReport) Failed() int {
	n := 0
	for _, s := range r.Stacks {
		if s.ErrorMessage() != "" {
			n++
		}
	}
	return n
}

// Archives returns the paths of archives created in this run.
func (r *RunReport) Archives() []string {
	var paths []string
	for _, s := range r.Stacks {
		if s.Archived {
			paths = append(paths, s.ArchivePath)
		}
	}
	return paths
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " | ")), " ")
}
