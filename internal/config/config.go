// Package config holds the mount configuration for cachefs.
//
// Settings come from three places, lowest precedence first: built-in
// defaults, an optional YAML file, and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteMode selects when cache content is mirrored to the remote tree.
type WriteMode string

const (
	// WriteImmediate mirrors every create, write and truncate before the
	// call returns.
	WriteImmediate WriteMode = "immediate-sync"
	// WriteDeferred mirrors modified files when their handle is released.
	WriteDeferred WriteMode = "deferred-sync"
)

// ParseWriteMode accepts the canonical names plus the write-through /
// write-back aliases.
func ParseWriteMode(s string) (WriteMode, error) {
	switch s {
	case string(WriteImmediate), "write-through":
		return WriteImmediate, nil
	case string(WriteDeferred), "write-back":
		return WriteDeferred, nil
	default:
		return "", fmt.Errorf("unknown write mode %q (want %s or %s)", s, WriteImmediate, WriteDeferred)
	}
}

// UnmarshalYAML lets config files use either spelling of a write mode.
func (m *WriteMode) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	mode, err := ParseWriteMode(raw)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Config is the complete mount configuration.
type Config struct {
	RemoteDir     string    `yaml:"remote_dir"`
	CacheDir      string    `yaml:"cache_dir"`
	MountPoint    string    `yaml:"mountpoint"`
	WriteMode     WriteMode `yaml:"write_mode"`
	MetadataCache bool      `yaml:"metadata_cache"`
	LogLevel      string    `yaml:"log_level"`
	MetricsAddr   string    `yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		WriteMode: WriteImmediate,
		LogLevel:  "info",
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

var (
	// ErrMissingPath indicates a required directory was not configured
	ErrMissingPath = errors.New("required path not set")

	// ErrNotDirectory indicates a configured path is not a directory
	ErrNotDirectory = errors.New("not a directory")
)

// Validate checks that the remote and cache roots exist and are directories
// and resolves them to absolute, symlink-free paths.
func (c *Config) Validate() error {
	if c.MountPoint == "" {
		return fmt.Errorf("mountpoint: %w", ErrMissingPath)
	}
	if _, err := ParseWriteMode(string(c.WriteMode)); err != nil {
		return err
	}

	remote, err := resolveDir("remote_dir", c.RemoteDir)
	if err != nil {
		return err
	}
	cache, err := resolveDir("cache_dir", c.CacheDir)
	if err != nil {
		return err
	}

	c.RemoteDir = remote
	c.CacheDir = cache
	return nil
}

func resolveDir(name, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%s: %w", name, ErrMissingPath)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s %s: %w", name, dir, ErrNotDirectory)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, dir, err)
	}
	return resolved, nil
}
