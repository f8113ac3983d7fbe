package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default config file location.
const DefaultConfigPath = "~/.config/vizquery/config.yaml"

// Config holds all vizquery configuration: the upstream endpoint and
// credential established once at startup, execution tuning, storage and
// scheduler output settings.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Execution ExecutionConfig `yaml:"execution"`
	Storage   StorageConfig   `yaml:"storage"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig identifies the remote analytics server and the long-lived
// credential exchanged for session tokens.
type ServerConfig struct {
	URL         string `yaml:"url"`
	APIVersion  string `yaml:"api_version"`
	Site        string `yaml:"site"`
	TokenName   string `yaml:"token_name"`
	TokenSecret string `yaml:"token_secret"`
}

// ExecutionConfig tunes retry and session behavior.
type ExecutionConfig struct {
	MaxAttempts       uint `yaml:"max_attempts"`
	RetryDelaySeconds int  `yaml:"retry_delay_seconds"`
	SessionTTLMinutes int  `yaml:"session_ttl_minutes"`
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
}

// StorageConfig locates the local query store.
type StorageConfig struct {
	Path       string `yaml:"path"`
	SQLiteFile string `yaml:"sqlite_file"`
}

// OutputConfig sets defaults for scheduled-run output files.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file at path and merges it with defaults. A
// token secret left empty in the file falls back to the VIZQUERY_TOKEN_SECRET
// environment variable so the secret can stay out of the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Server.TokenSecret == "" {
		cfg.Server.TokenSecret = os.Getenv("VIZQUERY_TOKEN_SECRET")
	}
	return cfg, nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path, writing a default
// file first if none exists.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, the directory structure is created and defaults are written.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}

	return Load(path)
}

// DBPath returns the resolved path of the SQLite store file.
func (c *Config) DBPath() (string, error) {
	dir, err := ExpandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}
