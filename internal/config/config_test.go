package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
options:
  backup_dir: /backups
stacks_dir: /opt/stacks
stacks: [web, db]
`

func TestParseExample(t *testing.T) {
	t.Setenv("SMTP_USERNAME", "apikey")
	t.Setenv("SMTP_PASSWORD", "hunter2")

	cfg, err := Parse(Example)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.finish(); err != nil {
		t.Fatalf("example config does not validate: %v", err)
	}

	if cfg.Options.BackupDir != "/var/backups/docker" {
		t.Errorf("options.backup_dir = %q", cfg.Options.BackupDir)
	}
	if len(cfg.Stacks) != 3 || cfg.Stacks[0] != "traefik" {
		t.Errorf("stacks = %v", cfg.Stacks)
	}
	if cfg.ExtraStack != "/opt/dockge" {
		t.Errorf("extra_stack = %q", cfg.ExtraStack)
	}
	if cfg.RetentionDays != 28 {
		t.Errorf("retention_days = %d, want 28", cfg.RetentionDays)
	}
	if cfg.SMTP == nil {
		t.Fatal("smtp section missing")
	}
	if cfg.SMTP.Username != "apikey" || cfg.SMTP.Password != "hunter2" {
		t.Errorf("smtp credentials = %q/%q, want envsubst applied", cfg.SMTP.Username, cfg.SMTP.Password)
	}
	if cfg.Hostname == "" {
		t.Error("hostname should default to os.Hostname()")
	}
}

func TestEnvsubst(t *testing.T) {
	t.Setenv("TEST_TOKEN", "secret123")
	cfg := loadFromString(t, minimal+`
services:
  test:
    url: https://${TEST_TOKEN}@example.com
`)
	if cfg.Services["test"].URL != "https://secret123@example.com" {
		t.Errorf("url = %q, want envsubst applied", cfg.Services["test"].URL)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := loadFromString(t, minimal+`
smtp:
  host: mail.example.com
  from: a@example.com
  to: [b@example.com]
`)
	cfg.ApplyDefaults()

	if cfg.RetentionDays != DefaultRetentionDays {
		t.Errorf("retention_days = %d, want %d", cfg.RetentionDays, DefaultRetentionDays)
	}
	if strings.Join(cfg.Compose.Command, " ") != "docker compose" {
		t.Errorf("compose.command = %v", cfg.Compose.Command)
	}
	stop, start := cfg.Compose.Timeouts()
	if stop != 5*time.Minute || start != 5*time.Minute {
		t.Errorf("timeouts = %v/%v, want 5m/5m", stop, start)
	}
	if cfg.Archive.Command != "tar" || cfg.Archive.TimeoutDuration() != 2*time.Hour {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.Report.SubjectTag != "[DOCKER-BACKUP]" {
		t.Errorf("subject_tag = %q", cfg.Report.SubjectTag)
	}
	if !cfg.Report.LogIncluded() {
		t.Error("include_log should default to true")
	}
	if cfg.Options.LockFile != "/backups/.stackback.lock" {
		t.Errorf("lock_file = %q", cfg.Options.LockFile)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("smtp.port = %d, want 587", cfg.SMTP.Port)
	}
}

func TestApplyDefaults_KeepsExplicit(t *testing.T) {
	cfg := loadFromString(t, minimal+`
retention_days: 7
compose:
  command: [podman-compose]
  stop_timeout: 30s
report:
  include_log: false
`)
	cfg.ApplyDefaults()

	if cfg.RetentionDays != 7 {
		t.Errorf("retention_days = %d, want 7", cfg.RetentionDays)
	}
	if len(cfg.Compose.Command) != 1 || cfg.Compose.Command[0] != "podman-compose" {
		t.Errorf("compose.command = %v", cfg.Compose.Command)
	}
	if stop, _ := cfg.Compose.Timeouts(); stop != 30*time.Second {
		t.Errorf("stop timeout = %v, want 30s", stop)
	}
	if cfg.Report.LogIncluded() {
		t.Error("include_log = true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yml   string
		field string
	}{
		{
			name:  "missing backup dir",
			yml:   "stacks_dir: /opt/stacks\nstacks: [web]\n",
			field: "options.backup_dir",
		},
		{
			name:  "relative backup dir",
			yml:   "options: {backup_dir: backups}\nstacks_dir: /opt/stacks\nstacks: [web]\n",
			field: "options.backup_dir",
		},
		{
			name:  "no stacks",
			yml:   "options: {backup_dir: /backups}\n",
			field: "stacks",
		},
		{
			name:  "stacks without stacks dir",
			yml:   "options: {backup_dir: /backups}\nstacks: [web]\n",
			field: "stacks_dir",
		},
		{
			name:  "duplicate stacks",
			yml:   "options: {backup_dir: /backups}\nstacks_dir: /opt/stacks\nstacks: [web, web]\n",
			field: "stacks",
		},
		{
			name:  "bad cron",
			yml:   minimal + "schedule: every night\n",
			field: "schedule",
		},
		{
			name:  "bad duration",
			yml:   minimal + "compose: {stop_timeout: soon}\n",
			field: "compose.stop_timeout",
		},
		{
			name:  "negative retention",
			yml:   minimal + "retention_days: -1\n",
			field: "retention_days",
		},
		{
			name:  "extra stack named stacks",
			yml:   minimal + "extra_stack: /srv/stacks\n",
			field: "extra_stack",
		},
		{
			name:  "extra stack duplicates listed stack",
			yml:   minimal + "extra_stack: /srv/web\n",
			field: "extra_stack",
		},
		{
			name:  "bad smtp sender",
			yml:   minimal + "smtp: {host: mail, from: nobody, to: [a@example.com]}\n",
			field: "smtp.from",
		},
		{
			name:  "bad log level",
			yml:   "options: {backup_dir: /backups, log_level: loud}\nstacks_dir: /opt/stacks\nstacks: [web]\n",
			field: "options.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			cfg.ApplyDefaults()
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error = %T, want ValidationErrors", err)
			}
			for _, e := range verrs {
				if strings.HasPrefix(e.Field, tt.field) {
					return
				}
			}
			t.Errorf("no error for field %q in:\n%v", tt.field, err)
		})
	}
}

func TestValidate_StackNames(t *testing.T) {
	for _, name := range []string{"a/b", "..", "."} {
		cfg := loadFromString(t, minimal)
		cfg.Stacks = []string{name}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err == nil {
			t.Errorf("stack name %q accepted", name)
		}
	}
}

func TestValidate_ExtraStackRoot(t *testing.T) {
	for _, dir := range []string{"/", "//", "/.."} {
		cfg := loadFromString(t, "options: {backup_dir: /backups}\n")
		cfg.ExtraStack = dir
		cfg.ApplyDefaults()
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "extra_stack") {
			t.Errorf("extra_stack %q: err = %v, want extra_stack error", dir, err)
		}
	}
}

func TestValidate_ExtraStackOnly(t *testing.T) {
	cfg := loadFromString(t, "options: {backup_dir: /backups}\nextra_stack: /opt/dockge\n")
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_Schedule(t *testing.T) {
	cfg := loadFromString(t, minimal+"schedule: \"30 2 * * 0\"\n")
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolve(t *testing.T) {
	path := writeConfig(t, minimal+"hostname: box\n")
	cfg, got, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.Hostname != "box" {
		t.Errorf("hostname = %q, want box", cfg.Hostname)
	}
	if cfg.RetentionDays != DefaultRetentionDays {
		t.Error("defaults not applied")
	}
}

func TestResolve_Overlay(t *testing.T) {
	path := writeConfig(t, minimal)
	cfg, _, err := Resolve(path, func(c *Config) { c.Options.BackupDir = "/mnt/usb" })
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Options.BackupDir != "/mnt/usb" {
		t.Errorf("backup_dir = %q, want /mnt/usb", cfg.Options.BackupDir)
	}
	if cfg.Options.LockFile != "/mnt/usb/.stackback.lock" {
		t.Errorf("lock_file = %q, want it derived from the override", cfg.Options.LockFile)
	}
}

func TestResolve_Missing(t *testing.T) {
	if _, _, err := Resolve(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolve_Invalid(t *testing.T) {
	path := writeConfig(t, "stacks: [web]\n")
	if _, _, err := Resolve(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, minimal)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(minimal+"retention_days: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.Err != nil {
			t.Fatalf("reload error: %v", ev.Err)
		}
		if ev.Config.RetentionDays != 9 {
			t.Errorf("retention_days = %d, want 9", ev.Config.RetentionDays)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}
}

func TestWatcher_InvalidReload(t *testing.T) {
	path := writeConfig(t, minimal)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Writes to other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("retention_days: -3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.Err == nil {
			t.Fatal("expected reload error")
		}
		if ev.Config != nil {
			t.Error("config should be nil on error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}
}

// helpers

func writeConfig(t *testing.T, yml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func loadFromString(t *testing.T, yml string) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, yml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}
