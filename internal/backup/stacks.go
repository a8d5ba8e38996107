package backup

import (
	"path/filepath"
	"sort"

	"github.com/sznuper/stackback/internal/config"
	"github.com/sznuper/stackback/internal/notify"
	"github.com/sznuper/stackback/internal/stack"
)

// Stacks resolves the configured stacks in processing order: the listed
// stacks, then the extra stack.
func Stacks(cfg *config.Config) []stack.Spec {
	stacksArchive := filepath.Join(cfg.Options.BackupDir, config.StacksArchiveDir)

	specs := make([]stack.Spec, 0, len(cfg.Stacks)+1)
	for _, name := range cfg.Stacks {
		specs = append(specs, stack.Spec{
			Name:       name,
			Path:       filepath.Join(cfg.StacksDir, name),
			ArchiveDir: stacksArchive,
		})
	}
	if cfg.ExtraStack != "" {
		path := filepath.Clean(cfg.ExtraStack)
		name := filepath.Base(path)
		specs = append(specs, stack.Spec{
			Name:       name,
			Path:       path,
			ArchiveDir: filepath.Join(cfg.Options.BackupDir, name),
		})
	}
	return specs
}

// ArchiveDirs returns the distinct archive directories of specs in order
// of first appearance.
func ArchiveDirs(specs []stack.Spec) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, s := range specs {
		if !seen[s.ArchiveDir] {
			seen[s.ArchiveDir] = true
			dirs = append(dirs, s.ArchiveDir)
		}
	}
	return dirs
}

// Targets maps the smtp block and extra services to notification targets.
// SMTP comes first; services follow in name order.
func Targets(cfg *config.Config) ([]notify.Target, error) {
	var targets []notify.Target

	if s := cfg.SMTP; s != nil {
		t, err := notify.SMTPTarget(notify.SMTP{
			Host:       s.Host,
			Port:       s.Port,
			Username:   s.Username,
			Password:   s.Password,
			From:       s.From,
			FromName:   s.FromName,
			To:         s.To,
			Encryption: s.Encryption,
		})
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	names := make([]string, 0, len(cfg.Services))
	for name := range cfg.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		svc := cfg.Services[name]
		targets = append(targets, notify.Target{
			ServiceName: name,
			URL:         svc.URL,
			Params:      svc.Params,
		})
	}
	return targets, nil
}
