package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPaths returns the search order for config files.
func DefaultConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "stackback", "config.yaml"))
	}
	paths = append(paths, "/etc/stackback/config.yaml")
	return paths
}

// Resolve loads the config from the given explicit path, or searches the
// default locations. Overlays run on the parsed config before Hostname is
// filled from os.Hostname(), defaults are applied and the result is
// validated. The path that was loaded is returned alongside the config.
func Resolve(explicit string, overlays ...func(*Config)) (*Config, string, error) {
	path, err := findConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	for _, overlay := range overlays {
		overlay(cfg)
	}
	if err := cfg.finish(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// finish fills derived fields and validates.
func (c *Config) finish() error {
	if c.Hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolving hostname: %w", err)
		}
		c.Hostname = h
	}
	c.ApplyDefaults()
	return c.Validate()
}

func findConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched %v)", DefaultConfigPaths())
}
