package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/sznuper/stackback/internal/backup"
	"github.com/sznuper/stackback/internal/config"
	"github.com/sznuper/stackback/internal/logging"
	"github.com/sznuper/stackback/internal/runlock"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run backups on the configured cron schedule",
	Long: "Stays in the foreground and runs a backup whenever the schedule in the config fires. " +
		"A tick is skipped while the previous run is still going. The config file is reloaded when it changes.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Schedule == "" {
			return errors.New("schedule is not set in the config")
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Close()

		ctx := cmd.Context()
		d := newDaemon(ctx, cfg, logger)
		if err := d.reschedule(cfg.Schedule); err != nil {
			return err
		}

		watcher, err := config.NewWatcher(path, func(c *config.Config) { applyOptionFlags(cmd, c) })
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()

		logger.Info("scheduler started", "schedule", cfg.Schedule, "config", path)
		d.cron.Start()

		for {
			select {
			case <-ctx.Done():
				logger.Info("shutting down, waiting for a running backup to finish")
				<-d.cron.Stop().Done()
				return nil
			case ev, ok := <-watcher.Events():
				if !ok {
					<-d.cron.Stop().Done()
					return nil
				}
				d.reload(ev)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

// daemon owns the cron scheduler and the current config.
type daemon struct {
	ctx    context.Context
	logger *logging.Logger
	cron   *cron.Cron

	mu    sync.Mutex
	cfg   *config.Config
	entry cron.EntryID
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *logging.Logger) *daemon {
	cl := cronLogger{logger.Logger}
	return &daemon{
		ctx:    ctx,
		logger: logger,
		cfg:    cfg,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

func (d *daemon) reschedule(spec string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.cron.AddFunc(spec, d.tick)
	if err != nil {
		return err
	}
	if d.entry != 0 {
		d.cron.Remove(d.entry)
	}
	d.entry = id
	return nil
}

func (d *daemon) reload(ev config.Event) {
	if ev.Err != nil {
		d.logger.Error("config reload failed, keeping previous config", "error", ev.Err)
		return
	}

	d.mu.Lock()
	prev := d.cfg
	d.mu.Unlock()

	if ev.Config.Schedule == "" {
		d.logger.Error("reloaded config has no schedule, keeping previous config")
		return
	}
	if ev.Config.Schedule != prev.Schedule {
		if err := d.reschedule(ev.Config.Schedule); err != nil {
			d.logger.Error("rescheduling failed", "schedule", ev.Config.Schedule, "error", err)
			return
		}
	}
	if ev.Config.Options.LogFile != prev.Options.LogFile || ev.Config.Options.LogLevel != prev.Options.LogLevel {
		d.logger.Warn("log settings changed; restart to apply them")
	}

	d.mu.Lock()
	d.cfg = ev.Config
	d.mu.Unlock()
	d.logger.Info("config reloaded", "schedule", ev.Config.Schedule, "stacks", len(backup.Stacks(ev.Config)))
}

func (d *daemon) tick() {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	lock, err := runlock.Acquire(cfg.Options.LockFile)
	if err != nil {
		d.logger.Warn("skipping scheduled run", "error", err)
		return
	}
	defer lock.Release()

	rep, err := runBackup(d.ctx, cfg, d.logger)
	if err != nil {
		d.logger.Error("scheduled run failed to start", "error", err)
		return
	}
	d.logger.Info("scheduled run done", "run_id", rep.RunID, "status", rep.Status())
}

// cronLogger adapts slog to cron.Logger. Cron's routine messages go to
// debug.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
