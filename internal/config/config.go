// Package config loads the secframe configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backends for password storage.
const (
	BackendSoftware = "software"
	BackendSystem   = "system"
)

// Config holds settings loaded from ~/.secframe/config.yaml.
type Config struct {
	// Home holds keychains, the audit log and password metadata.
	Home string `yaml:"home"`
	// Keychain is the keychain file password commands use. Empty means the
	// default keychain.
	Keychain string `yaml:"keychain"`
	// Service is the service attribute of password store entries.
	Service  string `yaml:"service"`
	LogLevel string `yaml:"log_level"`
	AuditLog string `yaml:"audit_log"`
	// SystemRoots is a PEM bundle used instead of the platform's roots.
	SystemRoots string `yaml:"system_roots"`
	// Transforms can be set to false to run as if the platform had no
	// transform support.
	Transforms *bool  `yaml:"transforms"`
	Backend    string `yaml:"backend"`
}

// DefaultHome returns ~/.secframe.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".secframe")
}

// DefaultPath returns the default config file path: ~/.secframe/config.yaml.
func DefaultPath() string {
	home := DefaultHome()
	if home == "" {
		return ""
	}
	return filepath.Join(home, "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path. A missing, empty or all-comment
// file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Home == "" {
		c.Home = DefaultHome()
	}
	c.Home = expandHome(c.Home)
	c.Keychain = expandHome(c.Keychain)
	c.SystemRoots = expandHome(c.SystemRoots)
	if c.Service == "" {
		c.Service = "com.secframe"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AuditLog == "" {
		c.AuditLog = filepath.Join(c.Home, "audit.log")
	}
	c.AuditLog = expandHome(c.AuditLog)
	if c.Backend == "" {
		c.Backend = BackendSoftware
	}
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSoftware, BackendSystem:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSoftware, BackendSystem)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// TransformsEnabled reports whether transform support should be offered.
func (c *Config) TransformsEnabled() bool {
	return c.Transforms == nil || *c.Transforms
}

// KeychainDir is where the software service keeps keychain files.
func (c *Config) KeychainDir() string {
	return filepath.Join(c.Home, "keychains")
}

// MetadataPath is the password metadata file.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Home, "password-metadata.json")
}
