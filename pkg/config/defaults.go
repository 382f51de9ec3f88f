package config

import (
	"strings"
	"time"
)

// DefaultPort is the port both the server listeners and the client default to.
const DefaultPort = 58012

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
	applyClientDefaults(&cfg.Client)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Store == "" {
		cfg.Store = "."
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false; the port only matters when enabled.
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.Server == "" {
		cfg.Server = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
