package config

// DefaultConfig returns the built-in configuration. Values here are the
// baseline; Load overlays whatever the config file sets.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIVersion: "3.25",
		},
		Execution: ExecutionConfig{
			MaxAttempts:       3,
			RetryDelaySeconds: 2,
			SessionTTLMinutes: 30,
			TimeoutSeconds:    60,
		},
		Storage: StorageConfig{
			Path:       "~/.local/share/vizquery",
			SQLiteFile: "vizquery.db",
		},
		Output: OutputConfig{
			Dir:     "~/vizquery-output",
			Pattern: "{name}_{date}_{time}",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
