// Package config holds library configuration, loaded from environment
// variables with optional TOML file overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/devworkspace/sessionstate/logging"
)

// Config holds all tunables for the recovery and merge pipelines.
type Config struct {
	Recovery RecoveryConfig `toml:"recovery"`
	Merge    MergeConfig    `toml:"merge"`
	Logging  LogConfig      `toml:"logging"`
}

// RecoveryConfig bounds the partial-recovery path.
type RecoveryConfig struct {
	// MaxBlobSize caps how large a corrupted payload the extractor will
	// scan, in bytes.
	MaxBlobSize int `envconfig:"RECOVERY_MAX_BLOB_SIZE" default:"1048576" toml:"max_blob_size"`
}

// MergeConfig controls conflict sensitivity and the default strategy.
type MergeConfig struct {
	DefaultStrategy string `envconfig:"MERGE_DEFAULT_STRATEGY" default:"latest" toml:"default_strategy"`
	// ConflictWindow is the timestamp divergence beyond which same-identity
	// items are treated as conflicting during merges.
	ConflictWindow time.Duration `envconfig:"MERGE_CONFLICT_WINDOW" default:"1h" toml:"conflict_window"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads environment configuration and applies overrides from a
// TOML file on top.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Logger builds a logger from the logging section.
func (c *Config) Logger() (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Recovery: RecoveryConfig{
			MaxBlobSize: 1 << 20,
		},
		Merge: MergeConfig{
			DefaultStrategy: "latest",
			ConflictWindow:  time.Hour,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
