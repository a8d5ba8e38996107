package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/a8m/envsubst"
	"github.com/goccy/go-yaml"
)

// Example is a commented starter configuration.
//
//go:embed example.yaml
var Example []byte

type Config struct {
	Options       Options            `yaml:"options"`
	Hostname      string             `yaml:"hostname"`
	StacksDir     string             `yaml:"stacks_dir" validate:"required_with=Stacks,omitempty,abspath"`
	Stacks        []string           `yaml:"stacks" validate:"unique,dive,required,stackname"`
	ExtraStack    string             `yaml:"extra_stack" validate:"omitempty,abspath"`
	RetentionDays int                `yaml:"retention_days" validate:"min=1"`
	Schedule      string             `yaml:"schedule" validate:"omitempty,cron"`
	Compose       Compose            `yaml:"compose"`
	Archive       Archive            `yaml:"archive"`
	Report        Report             `yaml:"report"`
	SMTP          *SMTP              `yaml:"smtp"`
	Services      map[string]Service `yaml:"services" validate:"dive"`
}

// Options are the path settings that can be overridden from the command line.
type Options struct {
	BackupDir   string `yaml:"backup_dir" validate:"required,abspath"`
	LogFile     string `yaml:"log_file" validate:"omitempty,abspath"`
	LockFile    string `yaml:"lock_file" validate:"omitempty,abspath"`
	MetricsFile string `yaml:"metrics_file" validate:"omitempty,abspath"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type Compose struct {
	Command      []string `yaml:"command" validate:"min=1,dive,required"`
	StopTimeout  string   `yaml:"stop_timeout" validate:"duration"`
	StartTimeout string   `yaml:"start_timeout" validate:"duration"`
}

// Timeouts returns the parsed stop and start timeouts.
func (c Compose) Timeouts() (stop, start time.Duration) {
	stop, _ = time.ParseDuration(c.StopTimeout)
	start, _ = time.ParseDuration(c.StartTimeout)
	return stop, start
}

type Archive struct {
	Command string `yaml:"command" validate:"required"`
	Timeout string `yaml:"timeout" validate:"duration"`
}

// TimeoutDuration returns the parsed archive timeout.
func (a Archive) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(a.Timeout)
	return d
}

type Report struct {
	SubjectTag string `yaml:"subject_tag"`
	Subject    string `yaml:"subject"`
	IncludeLog *bool  `yaml:"include_log"`
}

// LogIncluded reports whether the run log is appended to the email body.
func (r Report) LogIncluded() bool {
	return r.IncludeLog == nil || *r.IncludeLog
}

type SMTP struct {
	Host       string   `yaml:"host" validate:"required"`
	Port       int      `yaml:"port" validate:"min=1,max=65535"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from" validate:"required,email"`
	FromName   string   `yaml:"from_name"`
	To         []string `yaml:"to" validate:"min=1,dive,email"`
	Encryption string   `yaml:"encryption" validate:"omitempty,oneof=Auto None ExplicitTLS ImplicitTLS"`
}

// Service is an additional Shoutrrr notification target.
type Service struct {
	URL    string            `yaml:"url" validate:"required"`
	Params map[string]string `yaml:"params"`
}

// Defaults applied to empty fields by ApplyDefaults.
const (
	DefaultRetentionDays = 28
	DefaultStopTimeout   = "5m"
	DefaultStartTimeout  = "5m"
	DefaultArchiveTmo    = "2h"
	DefaultSubjectTag    = "[DOCKER-BACKUP]"
	lockFileName         = ".stackback.lock"
)

// StacksArchiveDir is the subdirectory of backup_dir holding archives of
// the listed stacks. The extra stack archives next to it, in a directory
// named after the stack.
const StacksArchiveDir = "stacks"

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.RetentionDays == 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if len(c.Compose.Command) == 0 {
		c.Compose.Command = []string{"docker", "compose"}
	}
	if c.Compose.StopTimeout == "" {
		c.Compose.StopTimeout = DefaultStopTimeout
	}
	if c.Compose.StartTimeout == "" {
		c.Compose.StartTimeout = DefaultStartTimeout
	}
	if c.Archive.Command == "" {
		c.Archive.Command = "tar"
	}
	if c.Archive.Timeout == "" {
		c.Archive.Timeout = DefaultArchiveTmo
	}
	if c.Report.SubjectTag == "" {
		c.Report.SubjectTag = DefaultSubjectTag
	}
	if c.Options.LockFile == "" && c.Options.BackupDir != "" {
		c.Options.LockFile = filepath.Join(c.Options.BackupDir, lockFileName)
	}
	if c.SMTP != nil && c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
}

// Load reads, expands and parses a config file. It does not apply defaults
// or validate; see Resolve.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references and decodes YAML.
func Parse(data []byte) (*Config, error) {
	data, err := envsubst.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("expanding env vars: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}
