// Package config loads and validates the tool configuration.
package config

import (
	"os"
	"path/filepath"
)

// Config is the root configuration document.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`
}

// DatabaseConfig configures the SQLite store for plans and activities.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
}

// ProviderConfig selects and configures the execution provider.
type ProviderConfig struct {
	// Name selects the registered execution provider.
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// WorkDir is the working directory plans execute in. Empty means the
	// current directory.
	WorkDir string `mapstructure:"workdir" yaml:"workdir"`

	// Options are passed through to the provider unchanged.
	Options map[string]string `mapstructure:"options" yaml:"options"`
}

// TransferConfig bounds the file transfer worker pool.
type TransferConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=1,max=64"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: defaultDatabasePath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Provider: ProviderConfig{
			Name: "dry-run",
		},
		Transfer: TransferConfig{
			Workers: 4,
		},
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "lineage.db"
	}
	return filepath.Join(home, ".lineage", "lineage.db")
}

// DefaultConfigPath returns the config file location used when --config is
// not given: $LINEAGE_CONFIG, falling back to ~/.lineage/config.yaml.
func DefaultConfigPath() string {
	if path := os.Getenv("LINEAGE_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".lineage", "config.yaml")
}
