package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sznuper/stackback/internal/disk"
	"github.com/sznuper/stackback/internal/retention"
	"github.com/sznuper/stackback/internal/stack"
)

var start = time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

func sampleReport() *RunReport {
	return &RunReport{
		RunID:    "5f0c7a2e",
		Hostname: "vps-01",
		Start:    start,
		End:      start.Add(4*time.Minute + 12*time.Second),
		Stacks: []StackResult{
			{
				Stack:       stack.Spec{Name: "nextcloud"},
				Stopped:     true,
				Archived:    true,
				Started:     true,
				ArchivePath: "/var/backups/docker/stacks/nextcloud_20261018_030000.tar",
				ArchiveSize: 3 << 20,
			},
			{
				Stack:    stack.Spec{Name: "gitea"},
				Started:  true,
				Err:      errors.New("stop gitea: exited with status 1: line one\nline two"),
				ErrStage: "stop",
			},
			{
				Stack:       stack.Spec{Name: "dockge"},
				Stopped:     true,
				Archived:    true,
				Started:     true,
				ArchivePath: "/var/backups/docker/dockge/dockge_20261018_030100.tar",
				ArchiveSize: 512,
			},
		},
		RetentionDays: 28,
		Retention: retention.Outcome{
			Deleted: []retention.Entry{
				{Path: "/var/backups/docker/stacks/gitea_20260901_030000.tar", Size: 2048, ModTime: start.Add(-47 * 24 * time.Hour)},
				{Path: "/var/backups/docker/stacks/gitea_20260915_030000.tar", Size: 1024, ModTime: start.Add(-33 * 24 * time.Hour)},
			},
			Skipped: []retention.Skipped{{
				Entry: retention.Entry{Path: "/var/backups/docker/stacks/locked.tar"},
				Err:   &retention.DeletionError{Path: "/var/backups/docker/stacks/locked.tar", Err: errors.New("permission denied")},
			}},
			FreedBytes: 3072,
		},
		DiskPath: "/var/backups/docker",
		Disk:     disk.Usage{Total: 100 << 30, Used: 40 << 30, Free: 60 << 30},
		Log:      []string{"time=... level=INFO msg=\"run started\""},
	}
}

func TestRender_Deterministic(t *testing.T) {
	r := sampleReport()
	first := Render(r)
	for range 5 {
		if got := Render(r); got != first {
			t.Fatal("Render produced different output for identical input")
		}
	}
}

func TestRender_SectionOrder(t *testing.T) {
	out := Render(sampleReport())
	sections := []string{
		"DOCKER STACK BACKUP REPORT",
		"STACKS (3)",
		"CREATED ARCHIVES",
		"RETENTION (archives older than 28 days)",
		"DISK USAGE (/var/backups/docker)",
		"RUN LOG",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		if idx < 0 {
			t.Fatalf("missing section %q in:\n%s", s, out)
		}
		if idx <= last {
			t.Errorf("section %q out of order", s)
		}
		last = idx
	}
}

func TestRender_EveryStackOnceInTable(t *testing.T) {
	out := Render(sampleReport())
	table := between(out, "STACKS (3)", "CREATED ARCHIVES")
	for _, name := range []string{"nextcloud", "gitea", "dockge"} {
		rows := 0
		for _, line := range strings.Split(table, "\n") {
			if strings.HasPrefix(line, name+" ") {
				rows++
			}
		}
		if rows != 1 {
			t.Errorf("stack %s appears %d times in table, want 1", name, rows)
		}
	}
	if !strings.Contains(table, "gitea [stop]: stop gitea: exited with status 1: line one | line two") {
		t.Errorf("error line missing or not flattened:\n%s", table)
	}
}

func TestRender_EveryRetentionEntryOnce(t *testing.T) {
	r := sampleReport()
	out := Render(r)
	for _, e := range r.Retention.Deleted {
		if n := strings.Count(out, e.Path); n != 1 {
			t.Errorf("%s appears %d times, want 1", e.Path, n)
		}
	}
	if n := strings.Count(out, "locked.tar"); n != 1 {
		t.Errorf("skipped entry appears %d times, want 1", n)
	}
	if !strings.Contains(out, "Deleted:  2 archive(s)") {
		t.Errorf("missing deleted count:\n%s", out)
	}
	if !strings.Contains(out, "Freed:    3.0 KiB (3072 bytes)") {
		t.Errorf("missing freed bytes:\n%s", out)
	}
}

func TestRender_ArchivesAlphabetical(t *testing.T) {
	out := Render(sampleReport())
	section := between(out, "CREATED ARCHIVES", "RETENTION")
	d := strings.Index(section, "dockge_20261018_030100.tar")
	n := strings.Index(section, "nextcloud_20261018_030000.tar")
	if d < 0 || n < 0 || d > n {
		t.Errorf("archives not alphabetical:\n%s", section)
	}
}

func TestRender_StatusLines(t *testing.T) {
	r := sampleReport()
	out := Render(r)
	if !strings.Contains(out, "Status:    FAILED") {
		t.Errorf("missing FAILED status:\n%s", out)
	}
	if !strings.Contains(out, "1 of 3 stacks failed") {
		t.Errorf("missing failure headline:\n%s", out)
	}

	r.Stacks[1].Err = nil
	out = Render(r)
	if !strings.Contains(out, "Status:    SUCCESS") {
		t.Errorf("missing SUCCESS status:\n%s", out)
	}
}

func TestRender_DiskUsage(t *testing.T) {
	r := sampleReport()
	out := Render(r)
	if !strings.Contains(out, "Total: 100 GiB | Used: 40 GiB | Free: 60 GiB | Usage: 40.0%") {
		t.Errorf("unexpected disk line:\n%s", out)
	}

	r.DiskErr = "statfs /var/backups/docker: no such file or directory"
	out = Render(r)
	if !strings.Contains(out, "ERROR retrieving disk space: statfs") {
		t.Errorf("missing disk error:\n%s", out)
	}
}

func TestRender_Empty(t *testing.T) {
	out := Render(&RunReport{Start: start, End: start})
	if !strings.Contains(out, "No stacks configured.") {
		t.Error("missing empty stacks note")
	}
	if !strings.Contains(out, "No new archives were created.") {
		t.Error("missing empty archives note")
	}
	if strings.Contains(out, "RUN LOG") {
		t.Error("run log section rendered without log lines")
	}
}

func TestStatus(t *testing.T) {
	r := &RunReport{Stacks: []StackResult{{}, {}}}
	if r.Status() != StatusSuccess {
		t.Errorf("status = %s, want SUCCESS", r.Status())
	}
	r.Stacks[1].Err = errors.New("archive failed")
	if r.Status() != StatusFailed {
		t.Errorf("status = %s, want FAILED", r.Status())
	}
}

func between(s, from, to string) string {
	i := strings.Index(s, from)
	j := strings.Index(s, to)
	if i < 0 || j < 0 || j < i {
		return ""
	}
	return s[i:j]
}

func TestRender_ArchiveSizes(t *testing.T) {
	r := sampleReport()
	r.Stacks[0].ArchiveSize = 15 << 20
	out := Render(r)
	for _, want := range []string{
		"nextcloud_20261018_030000.tar (15 MiB)",
		"dockge_20261018_030100.tar (512 B)",
		"2.0 KiB, modified",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}
