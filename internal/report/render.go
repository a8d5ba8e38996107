package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	width      = 68
	timeLayout = "2006-01-02 15:04:05 MST"
)

var (
	rule   = strings.Repeat("-", width)
	banner = strings.Repeat("=", width)
)

// Render formats the report as fixed-width plain text. It is a pure
// function of r.
func Render(r *RunReport) string {
	var b strings.Builder

	writeSummary(&b, r)
	writeStacks(&b, r)
	writeArchives(&b, r)
	writeRetention(&b, r)
	writeDisk(&b, r)
	writeLog(&b, r)

	return b.String()
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n%s\n%s\n", title, rule)
}

func writeSummary(b *strings.Builder, r *RunReport) {
	status := r.Status()
	b.WriteString(banner + "\n")
	b.WriteString("DOCKER STACK BACKUP REPORT\n")
	b.WriteString(banner + "\n")
	if status == StatusSuccess {
		b.WriteString("The backup run finished successfully.\n\n")
	} else {
		fmt.Fprintf(b, "ATTENTION: the backup run finished with errors (%d of %d stacks failed).\n\n", r.Failed(), len(r.Stacks))
	}

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run ID:\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Host:\t%s\n", r.Hostname)
	fmt.Fprintf(tw, "Started:\t%s\n", r.Start.Format(timeLayout))
	fmt.Fprintf(tw, "Finished:\t%s\n", r.End.Format(timeLayout))
	fmt.Fprintf(tw, "Duration:\t%s\n", r.End.Sub(r.Start).Round(time.Second))
	fmt.Fprintf(tw, "Status:\t%s\n", status)
	_ = tw.Flush()
}

func writeStacks(b *strings.Builder, r *RunReport) {
	section(b, fmt.Sprintf("STACKS (%d)", len(r.Stacks)))
	if len(r.Stacks) == 0 {
		b.WriteString("No stacks configured.\n")
		return
	}

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STACK\tSTOPPED\tARCHIVED\tSTARTED\tARCHIVE")
	for _, s := range r.Stacks {
		archive := "-"
		if s.Archived {
			archive = fmt.Sprintf("%s (%s)", filepath.Base(s.ArchivePath), humanize.IBytes(uint64(s.ArchiveSize)))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Stack.Name, yesNo(s.Stopped), yesNo(s.Archived), yesNo(s.Started), archive)
	}
	_ = tw.Flush()

	if r.Failed() == 0 {
		return
	}
	b.WriteString("\nErrors:\n")
	for _, s := range r.Stacks {
		if msg := s.ErrorMessage(); msg != "" {
			fmt.Fprintf(b, "  %s [%s]: %s\n", s.Stack.Name, s.ErrStage, oneLine(msg))
		}
	}
}

func writeArchives(b *strings.Builder, r *RunReport) {
	section(b, "CREATED ARCHIVES (alphabetical by file name)")

	type row struct {
		name string
		size int64
	}
	var rows []row
	for _, s := range r.Stacks {
		if s.Archived {
			rows = append(rows, row{filepath.Base(s.ArchivePath), s.ArchiveSize})
		}
	}
	if len(rows) == 0 {
		b.WriteString("No new archives were created.\n")
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	var total int64
	for _, rw := range rows {
		fmt.Fprintf(tw, "%s\t  %s\n", humanize.IBytes(uint64(rw.size)), rw.name)
		total += rw.size
	}
	fmt.Fprintf(tw, "%s\t  total\n", humanize.IBytes(uint64(total)))
	_ = tw.Flush()
}

func writeRetention(b *strings.Builder, r *RunReport) {
	section(b, fmt.Sprintf("RETENTION (archives older than %d days)", r.RetentionDays))
	out := r.Retention

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Deleted:\t%d archive(s)\n", len(out.Deleted))
	fmt.Fprintf(tw, "Freed:\t%s (%d bytes)\n", humanize.IBytes(uint64(out.FreedBytes)), out.FreedBytes)
	fmt.Fprintf(tw, "Skipped:\t%d\n", len(out.Skipped))
	_ = tw.Flush()

	for _, e := range out.Deleted {
		fmt.Fprintf(b, "  - %s (%s, modified %s)\n", e.Path, humanize.IBytes(uint64(e.Size)), e.ModTime.Format(timeLayout))
	}
	for _, s := range out.Skipped {
		fmt.Fprintf(b, "  ! %s: %s\n", s.Entry.Path, oneLine(s.Err.Err.Error()))
	}
	for _, msg := range r.RetentionErrs {
		fmt.Fprintf(b, "  ! %s\n", oneLine(msg))
	}
}

func writeDisk(b *strings.Builder, r *RunReport) {
	section(b, fmt.Sprintf("DISK USAGE (%s)", r.DiskPath))
	if r.DiskErr != "" {
		fmt.Fprintf(b, "ERROR retrieving disk space: %s\n", oneLine(r.DiskErr))
		return
	}
	d := r.Disk
	fmt.Fprintf(b, "Total: %s | Used: %s | Free: %s | Usage: %.1f%%\n",
		humanize.IBytes(d.Total), humanize.IBytes(d.Used), humanize.IBytes(d.Free), d.Percent())
}

func writeLog(b *strings.Builder, r *RunReport) {
	if len(r.Log) == 0 {
		return
	}
	section(b, "RUN LOG")
	for _, line := range r.Log {
		b.WriteString(line + "\n")
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
