package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/sznuper/stackback/internal/report"
	"github.com/sznuper/stackback/internal/retention"
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true)
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
	styleErr   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A89"))
)

func okMark() string   { return styleOK.Render("✓") }
func failMark() string { return styleErr.Render("✗") }

func printRunSummary(w io.Writer, rep *report.RunReport) {
	fmt.Fprintln(w, styleTitle.Render("Backup run "+rep.RunID))
	for _, s := range rep.Stacks {
		if s.Err != nil {
			fmt.Fprintf(w, "%s %s\n", failMark(), s.Stack.Name)
			fmt.Fprintf(w, "  Error (%s): %s\n", s.ErrStage, s.ErrorMessage())
			if !s.Started {
				fmt.Fprintln(w, styleErr.Render("  Stack is NOT running"))
			}
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", okMark(), s.Stack.Name,
			styleMuted.Render(fmt.Sprintf("%s (%s)", filepath.Base(s.ArchivePath), humanize.IBytes(uint64(s.ArchiveSize)))))
	}

	printRetention(w, "Deleted", rep.Retention)
	for _, e := range rep.RetentionErrs {
		fmt.Fprintln(w, styleWarn.Render("  "+e))
	}

	status := styleOK.Render(string(rep.Status()))
	if rep.Status() == report.StatusFailed {
		status = styleErr.Render(string(rep.Status()))
	}
	fmt.Fprintf(w, "Status: %s (%s)\n", status, rep.End.Sub(rep.Start).Round(time.Second))
}

func printRetention(w io.Writer, verb string, out retention.Outcome) {
	fmt.Fprintf(w, "Retention: %s %d archive(s), %s\n", verb, len(out.Deleted), humanize.IBytes(uint64(out.FreedBytes)))
	for _, e := range out.Deleted {
		fmt.Fprintln(w, styleMuted.Render("  - "+e.Path))
	}
	for _, s := range out.Skipped {
		fmt.Fprintf(w, "  %s %s: %v\n", styleWarn.Render("!"), s.Entry.Path, s.Err.Err)
	}
}
