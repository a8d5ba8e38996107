package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sznuper/stackback/internal/report"
)

const namespace = "stackback"

type runMetrics struct {
	lastRun       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	duration      prometheus.Gauge
	success       prometheus.Gauge
	stacksTotal   prometheus.Gauge
	stacksFailed  prometheus.Gauge
	archiveBytes  *prometheus.GaugeVec
	stackOK       *prometheus.GaugeVec
	deletedTotal  prometheus.Gauge
	freedBytes    prometheus.Gauge
	skippedTotal  prometheus.Gauge
	diskUsedRatio prometheus.Gauge
	diskFreeBytes prometheus.Gauge
}

func newRunMetrics(reg prometheus.Registerer) *runMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}
	gaugeVec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
		reg.MustRegister(g)
		return g
	}

	return &runMetrics{
		lastRun:       gauge("last_run_timestamp_seconds", "Start time of the last backup run."),
		lastSuccess:   gauge("last_success_timestamp_seconds", "Start time of the last successful backup run, 0 if the last run failed."),
		duration:      gauge("last_run_duration_seconds", "Wall time of the last backup run."),
		success:       gauge("last_run_success", "1 if the last run had no stack errors."),
		stacksTotal:   gauge("stacks", "Stacks processed in the last run."),
		stacksFailed:  gauge("stacks_failed", "Stacks with errors in the last run."),
		archiveBytes:  gaugeVec("archive_size_bytes", "Size of the archive created for a stack.", "stack"),
		stackOK:       gaugeVec("stack_success", "1 if the stack was stopped, archived and restarted.", "stack"),
		deletedTotal:  gauge("retention_deleted", "Archives deleted by retention in the last run."),
		freedBytes:    gauge("retention_freed_bytes", "Bytes freed by retention in the last run."),
		skippedTotal:  gauge("retention_skipped", "Expired archives that could not be deleted."),
		diskUsedRatio: gauge("disk_used_ratio", "Used fraction of the backup filesystem."),
		diskFreeBytes: gauge("disk_free_bytes", "Free bytes on the backup filesystem."),
	}
}

func (m *runMetrics) observe(r *report.RunReport) {
	m.lastRun.Set(float64(r.Start.Unix()))
	m.duration.Set(r.End.Sub(r.Start).Seconds())
	m.stacksTotal.Set(float64(len(r.Stacks)))
	m.stacksFailed.Set(float64(r.Failed()))

	if r.Status() == report.StatusSuccess {
		m.success.Set(1)
		m.lastSuccess.Set(float64(r.Start.Unix()))
	}

	for _, s := range r.Stacks {
		ok := 0.0
		if s.Err == nil && s.Archived && s.Started {
			ok = 1
		}
		m.stackOK.WithLabelValues(s.Stack.Name).Set(ok)
		if s.Archived {
			m.archiveBytes.WithLabelValues(s.Stack.Name).Set(float64(s.ArchiveSize))
		}
	}

	m.deletedTotal.Set(float64(len(r.Retention.Deleted)))
	m.freedBytes.Set(float64(r.Retention.FreedBytes))
	m.skippedTotal.Set(float64(len(r.Retention.Skipped)))

	if r.DiskErr == "" {
		m.diskUsedRatio.Set(r.Disk.Percent() / 100)
		m.diskFreeBytes.Set(float64(r.Disk.Free))
	}
}

// Gather builds a registry populated from the report.
func Gather(r *report.RunReport) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	newRunMetrics(reg).observe(r)
	return reg
}

// WriteTextfile writes the report's metrics to path atomically.
func WriteTextfile(path string, r *report.RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Gather(r)); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
