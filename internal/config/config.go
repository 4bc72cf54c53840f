// Package config handles loading and parsing of the engine's configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // Graceful shutdown timeout in seconds.
}

// StoreConfig holds the embedded object store's settings.
type StoreConfig struct {
	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
	// ChunkSize is the number of bytes per stored chunk row.
	ChunkSize int `yaml:"chunk_size"`
}

// AuthConfig holds bearer-token authentication settings.
type AuthConfig struct {
	// Secrets is the ordered set of HS256 signing secrets tried during
	// token verification, supporting rotation without invalidating
	// tokens signed under a previous secret.
	Secrets []string `yaml:"secrets"`
	// AllowDevBypass gates the literal "foo" bearer token that skips
	// verification. Must never be true outside local development.
	AllowDevBypass bool `yaml:"allow_dev_bypass"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is the log output format: "text" or "json".
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics surface.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config with defaults applied for unset values. The file is
// optional: if it does not exist, Load falls back to defaultConfig
// unchanged rather than failing.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            9000,
			ShutdownTimeout: 30,
		},
		Store: StoreConfig{
			Path:      "./data/store.db",
			ChunkSize: 1 << 20,
		},
		Auth: AuthConfig{
			AllowDevBypass: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyDefaults fills in any fields left at their zero value after YAML
// unmarshaling, so a partial config file still produces a usable Config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./data/store.db"
	}
	if cfg.Store.ChunkSize == 0 {
		cfg.Store.ChunkSize = 1 << 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
