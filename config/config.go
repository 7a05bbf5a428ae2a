// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	DataDir        string          `yaml:"data_dir"`
	Libraries      []LibraryConfig `yaml:"libraries"`
	CurrentLibrary string          `yaml:"current_library"`
	Backends       BackendsConfig  `yaml:"backends"`
	Execution      ExecutionConfig `yaml:"execution"`
	Journal        JournalConfig   `yaml:"journal"`
	Logging        LoggingConfig   `yaml:"logging"`
}

// LibraryConfig registers one filter library directory.
type LibraryConfig struct {
	Path      string `yaml:"path"`
	Name      string `yaml:"name,omitempty"`
	Recursive bool   `yaml:"recursive"`
}

// BackendsConfig locates the filtering tool installations.
type BackendsConfig struct {
	PDAL     PDALConfig     `yaml:"pdal"`
	LASTools LASToolsConfig `yaml:"lastools"`
	OPALS    OPALSConfig    `yaml:"opals"`
}

// PDALConfig configures the PDAL backend.
type PDALConfig struct {
	Executable string `yaml:"executable"` // empty means lookup on the PATH
}

// LASToolsConfig configures the LASTools backend.
type LASToolsConfig struct {
	Dir string `yaml:"dir"`
}

// OPALSConfig configures the OPALS backend.
type OPALSConfig struct {
	Dir string `yaml:"dir"`
}

// ExecutionConfig carries the defaults for adaptive filtering runs.
type ExecutionConfig struct {
	OutputDir  string  `yaml:"output_dir"`
	Resolution float64 `yaml:"resolution"`
	Compress   bool    `yaml:"compress"`
	Suffix     string  `yaml:"suffix"`
}

// JournalConfig configures the execution journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
	File   string `yaml:"file,omitempty"`
}

// JournalPath returns the journal database location, resolving a
// relative path against the data directory.
func (c *Config) JournalPath() string {
	path := c.Journal.Path
	if c.DataDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(c.DataDir, path)
	}
	return path
}

// Validate re-checks the configuration. Load already validates; callers
// that modify a loaded configuration, e.g. from command line flags, use
// this before acting on it.
func (c *Config) Validate() error {
	return validate(c)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables
// and built-in defaults. No configuration file is required to run.
//
// Environment variables:
//
//	AFWIZARD_DATA_DIR      - Data directory for libraries and the journal
//	AFWIZARD_PDAL_EXEC     - PDAL executable (default: pdal on the PATH)
//	AFWIZARD_LASTOOLS_DIR  - LASTools distribution directory
//	AFWIZARD_OPALS_DIR     - OPALS distribution directory
//	AFWIZARD_JOURNAL_PATH  - Execution journal database path
//	AFWIZARD_LOG_LEVEL     - Log level: debug, info, warn, error (default: info)
//	AFWIZARD_LOG_FORMAT    - Log format: json or console (default: console)
//
// The unprefixed LASTOOLS_DIR and OPALS_DIR variables are honored as
// well, with the AFWIZARD_* forms taking precedence.
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables and defaults when the file does not exist.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies AFWIZARD_* environment variables to the
// config. Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AFWIZARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Backend locations. The bare variables match the names the
	// filtering tools themselves document.
	if v := os.Getenv("LASTOOLS_DIR"); v != "" {
		cfg.Backends.LASTools.Dir = v
	}
	if v := os.Getenv("AFWIZARD_LASTOOLS_DIR"); v != "" {
		cfg.Backends.LASTools.Dir = v
	}
	if v := os.Getenv("OPALS_DIR"); v != "" {
		cfg.Backends.OPALS.Dir = v
	}
	if v := os.Getenv("AFWIZARD_OPALS_DIR"); v != "" {
		cfg.Backends.OPALS.Dir = v
	}
	if v := os.Getenv("AFWIZARD_PDAL_EXEC"); v != "" {
		cfg.Backends.PDAL.Executable = v
	}

	// Journal configuration
	if v := os.Getenv("AFWIZARD_JOURNAL_PATH"); v != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = v
	}

	// Logging configuration
	if v := os.Getenv("AFWIZARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AFWIZARD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Execution.OutputDir == "" {
		cfg.Execution.OutputDir = "output"
	}
	if cfg.Execution.Resolution == 0 {
		cfg.Execution.Resolution = 0.5
	}
	if cfg.Execution.Suffix == "" {
		cfg.Execution.Suffix = "filtered"
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		cfg.Journal.Path = "afwizard.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

var suffixPattern = regexp.MustCompile(`^[a-z0-9_]*$`)

func validate(cfg *Config) error {
	if cfg.Execution.Resolution <= 0 {
		return fmt.Errorf("execution.resolution must be positive, got %v", cfg.Execution.Resolution)
	}
	if !suffixPattern.MatchString(cfg.Execution.Suffix) {
		return fmt.Errorf("execution.suffix may only contain lowercase letters, digits and underscores, got %q", cfg.Execution.Suffix)
	}

	for i, lib := range cfg.Libraries {
		if lib.Path == "" {
			return fmt.Errorf("libraries[%d].path is required", i)
		}
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level %q: %w", cfg.Logging.Level, err)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
