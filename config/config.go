// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "scopedb.yaml"

// Config is the root configuration structure.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Schema      SchemaConfig      `yaml:"schema"`
	Transaction TransactionConfig `yaml:"transaction"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// SchemaConfig lists the schema declaration files. Each entry is a YAML
// file or a directory of them. Relative paths are resolved against the
// config file's directory.
type SchemaConfig struct {
	Paths []string `yaml:"paths"`
}

// TransactionConfig configures transactions opened by the CLI.
type TransactionConfig struct {
	// OpenTimeout bounds the wait for the database handle.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
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

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	resolvePaths(&cfg, filepath.Dir(path))

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	SCOPEDB_DATABASE_DRIVER     - sqlite or memory (default: sqlite)
//	SCOPEDB_DATABASE_DSN        - Database path (default: scopedb.db)
//	SCOPEDB_SCHEMA_PATHS        - Comma-separated schema files or directories (required)
//	SCOPEDB_TX_OPEN_TIMEOUT     - Handle wait bound (default: 5s)
//	SCOPEDB_LOG_LEVEL           - Log level: debug, info, warn, error (default: info)
//	SCOPEDB_LOG_FORMAT          - Log format: json or console (default: console)
//	SCOPEDB_METRICS_ENABLED     - Collect Prometheus metrics (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path if it exists and falls back to environment
// variables otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide %s or set SCOPEDB_SCHEMA_PATHS", DefaultPath)
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("SCOPEDB_SCHEMA_PATHS") != ""
}

// applyEnvOverrides applies SCOPEDB_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCOPEDB_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SCOPEDB_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("SCOPEDB_SCHEMA_PATHS"); v != "" {
		cfg.Schema.Paths = splitList(v)
	}

	if v := os.Getenv("SCOPEDB_TX_OPEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transaction.OpenTimeout = d
		}
	}

	if v := os.Getenv("SCOPEDB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCOPEDB_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("SCOPEDB_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "scopedb.db"
	}

	if cfg.Transaction.OpenTimeout == 0 {
		cfg.Transaction.OpenTimeout = 5 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func resolvePaths(cfg *Config, dir string) {
	for i, p := range cfg.Schema.Paths {
		if !filepath.IsAbs(p) {
			cfg.Schema.Paths[i] = filepath.Join(dir, p)
		}
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN != ":memory:" && !filepath.IsAbs(cfg.Database.DSN) {
		cfg.Database.DSN = filepath.Join(dir, cfg.Database.DSN)
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	if len(cfg.Schema.Paths) == 0 {
		return fmt.Errorf("schema.paths is required")
	}

	if cfg.Transaction.OpenTimeout < 0 {
		return fmt.Errorf("transaction.open_timeout must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
