package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sznuper/stackback/internal/archive"
	"github.com/sznuper/stackback/internal/command"
	"github.com/sznuper/stackback/internal/config"
	"github.com/sznuper/stackback/internal/disk"
	"github.com/sznuper/stackback/internal/notify"
	"github.com/sznuper/stackback/internal/report"
	"github.com/sznuper/stackback/internal/retention"
	"github.com/sznuper/stackback/internal/stack"
)

// Notifier delivers the rendered report.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// Orchestrator runs backups for one configuration.
type Orchestrator struct {
	cfg      *config.Config
	logger   *slog.Logger
	runner   command.Runner
	notifier Notifier
	now      func() time.Time
	space    func(path string) (disk.Usage, error)
	logLines func() []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunner replaces the process runner used for compose and tar.
func WithRunner(r command.Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithNotifier replaces the notifier built from the config.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSpaceFunc replaces the filesystem usage probe.
func WithSpaceFunc(fn func(path string) (disk.Usage, error)) Option {
	return func(o *Orchestrator) { o.space = fn }
}

// WithLogLines supplies the run log attached to the report.
func WithLogLines(fn func() []string) Option {
	return func(o *Orchestrator) { o.logLines = fn }
}

// New creates an Orchestrator. Unless WithNotifier is given, the config's
// smtp block and services become the notification targets.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger,
		runner: command.ExecRunner{},
		now:    time.Now,
		space:  disk.Stat,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.notifier == nil {
		targets, err := Targets(cfg)
		if err != nil {
			return nil, fmt.Errorf("building notification targets: %w", err)
		}
		if len(targets) == 0 {
			logger.Warn("no notification targets configured")
		}
		o.notifier = notify.New(targets, false, logger)
	}
	return o, nil
}

// Run processes every stack in order, then enforces retention, snapshots
// disk usage and sends the report. Per-stack failures are recorded in the
// report; an error is returned only if the run could not begin.
func (o *Orchestrator) Run(ctx context.Context) (*report.RunReport, error) {
	start := o.now()
	runID := uuid.NewString()
	log := o.logger.With("run_id", runID)

	specs := Stacks(o.cfg)
	dirs := ArchiveDirs(specs)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	rep := &report.RunReport{
		RunID:         runID,
		Hostname:      o.cfg.Hostname,
		Start:         start,
		RetentionDays: o.cfg.RetentionDays,
		DiskPath:      o.cfg.Options.BackupDir,
	}

	stopTimeout, startTimeout := o.cfg.Compose.Timeouts()
	ctrl := stack.NewController(o.runner, o.cfg.Compose.Command, stopTimeout, startTimeout, log)
	arch := archive.New(o.runner, o.cfg.Archive.Command, o.cfg.Archive.TimeoutDuration(), log).
		WithSpaceFunc(o.space)
	ret := retention.New(archive.Ext, log)

	log.Info("backup run started", "stacks", len(specs), "backup_dir", o.cfg.Options.BackupDir)

	for _, s := range specs {
		res := o.processStack(ctx, ctrl, arch, s, start, log.With("stack", s.Name))
		if res.Archived {
			ret.Protect(res.ArchivePath)
		}
		rep.Stacks = append(rep.Stacks, res)
	}

	for _, dir := range dirs {
		out, err := ret.Enforce(dir, o.cfg.RetentionDays, start)
		if err != nil {
			log.Error("retention failed", "dir", dir, "error", err)
			rep.RetentionErrs = append(rep.RetentionErrs, err.Error())
		}
		rep.Retention.Merge(out)
	}
	log.Info("retention finished",
		"deleted", len(rep.Retention.Deleted),
		"skipped", len(rep.Retention.Skipped),
		"freed_bytes", rep.Retention.FreedBytes,
	)

	if usage, err := o.space(o.cfg.Options.BackupDir); err != nil {
		log.Warn("disk usage unavailable", "path", o.cfg.Options.BackupDir, "error", err)
		rep.DiskErr = err.Error()
	} else {
		rep.Disk = usage
	}

	rep.End = o.now()
	log.Info("backup run finished",
		"status", rep.Status(),
		"failed", rep.Failed(),
		"duration", rep.End.Sub(rep.Start),
	)

	if o.logLines != nil && o.cfg.Report.LogIncluded() {
		rep.Log = o.logLines()
	}

	o.notify(ctx, rep, log)
	return rep, nil
}

// processStack walks one stack through stop, archive and start. Start is
// attempted exactly once whatever happened before it, even if ctx has been
// canceled.
func (o *Orchestrator) processStack(ctx context.Context, ctrl *stack.Controller, arch *archive.Archiver, s stack.Spec, ts time.Time, log *slog.Logger) report.StackResult {
	res := report.StackResult{Stack: s}
	m := newMachine(&res, log)

	fail := func(stage string, err error) {
		log.Error(stage+" failed", "error", err)
		res.Err = errors.Join(res.Err, err)
		if res.ErrStage == "" {
			res.ErrStage = stage
		}
	}

	log.Info("stopping stack", "path", s.Path)
	m.to(Stopping)
	if err := ctrl.Stop(ctx, s); err != nil {
		fail("stop", err)
		m.to(StopFailed)
	} else {
		res.Stopped = true
		m.to(Stopped)

		m.to(Archiving)
		artifact, err := arch.Archive(ctx, s, s.ArchiveDir, ts)
		if err != nil {
			fail("archive", err)
			m.to(ArchiveFailed)
		} else {
			res.Archived = true
			res.ArchivePath = artifact.Path
			res.ArchiveSize = artifact.Size
			m.to(Archived)
		}
	}

	log.Info("starting stack")
	m.to(Starting)
	if err := ctrl.Start(context.WithoutCancel(ctx), s); err != nil {
		fail("start", err)
		m.to(StartFailed)
	} else {
		res.Started = true
		m.to(Started)
	}

	m.to(Done)
	return res
}

func (o *Orchestrator) notify(ctx context.Context, rep *report.RunReport, log *slog.Logger) {
	data := report.NewSubjectData(o.cfg.Report.SubjectTag, rep)
	subject, err := report.Subject(o.cfg.Report.Subject, data)
	if err != nil {
		log.Warn("subject template failed, using default", "error", err)
		subject, _ = report.Subject("", data)
	}

	body := report.Render(rep)
	if err := o.notifier.Send(context.WithoutCancel(ctx), subject, body); err != nil {
		log.Error("sending report failed", "error", err)
		return
	}
	log.Info("report sent", "subject", subject)
}

// Prune enforces retention over every archive directory outside of a
// backup run. With dryRun set nothing is deleted and the outcome lists the
// archives that would be.
func (o *Orchestrator) Prune(dryRun bool) (retention.Outcome, error) {
	now := o.now()
	ret := retention.New(archive.Ext, o.logger)

	var (
		out  retention.Outcome
		errs []error
	)
	for _, dir := range ArchiveDirs(Stacks(o.cfg)) {
		if dryRun {
			entries, err := ret.Plan(dir, o.cfg.RetentionDays, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, e := range entries {
				out.Deleted = append(out.Deleted, e)
				out.FreedBytes += e.Size
			}
			continue
		}

		dirOut, err := ret.Enforce(dir, o.cfg.RetentionDays, now)
		if err != nil {
			errs = append(errs, err)
		}
		out.Merge(dirOut)
	}
	return out, errors.Join(errs...)
}

// Check verifies that every stack directory exists. It returns one error
// per missing or unusable directory.
func (o *Orchestrator) Check() []error {
	var errs []error
	for _, s := range Stacks(o.cfg) {
		info, err := os.Stat(s.Path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("stack %s: %w", s.Name, err))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("stack %s: %s is not a directory", s.Name, s.Path))
		}
	}
	return errs
}
