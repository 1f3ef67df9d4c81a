package config

import "strings"

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultColor     = "auto"
)

// ApplyDefaults fills in zero values and normalizes case.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	if cfg.Output.Color == "" {
		cfg.Output.Color = defaultColor
	}
	cfg.Output.Color = strings.ToLower(cfg.Output.Color)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
