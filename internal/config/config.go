// Package config loads the server and storage configuration from a
// YAML file. Command-line flags override file values; the defaults
// (Default, or Load with an empty path) run an in-memory database with
// the HTTP endpoint on :8080.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects the primitive backend.
type StorageConfig struct {
	// Mode is memory, sqlite, or bolt.
	Mode string `yaml:"mode"`
	// Path is the database file for persistent modes.
	Path string `yaml:"path"`
	// BatchSize caps range-scan pages.
	BatchSize int `yaml:"batch_size"`
}

// ServerConfig configures the front-end listeners.
type ServerConfig struct {
	HTTP string `yaml:"http"` // listen address, empty disables
	GRPC string `yaml:"grpc"` // listen address, empty disables
	// StatementTimeout bounds one statement's wall clock, in
	// milliseconds. Zero means no timeout.
	StatementTimeoutMs int `yaml:"statement_timeout_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the zero-config defaults.
func Default() Config {
	return Config{
		Storage: StorageConfig{Mode: "memory"},
		Server:  ServerConfig{HTTP: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
