// Package config loads xfscat settings from a YAML file and XFSCAT_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the complete xfscat configuration.
//
// Example config.yaml:
//
//	logging:
//	  level: debug
//	  format: logfmt
//	output:
//	  color: never
//	  human_sizes: true
//	source:
//	  s3:
//	    region: eu-west-1
//	    endpoint: http://localhost:9000
//	    access_key_id: minio
//	    secret_access_key: minio123
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
	Source  SourceConfig  `mapstructure:"source"`
}

// LoggingConfig controls the stderr logger.
type LoggingConfig struct {
	// Level is the minimum level logged (debug, info, warn, error)
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`

	// Format is text, json or logfmt
	Format string `mapstructure:"format" validate:"required,oneof=text json logfmt"`
}

// OutputConfig controls command output.
type OutputConfig struct {
	// Color is auto, always or never. Auto colours only terminals.
	Color string `mapstructure:"color" validate:"required,oneof=auto always never"`

	// HumanSizes prints sizes as 1.2 MB instead of bytes
	HumanSizes bool `mapstructure:"human_sizes"`
}

// SourceConfig holds per-backend image source options. The S3 section is
// decoded by the source package.
type SourceConfig struct {
	S3 map[string]any `mapstructure:"s3"`
}

// Load reads configuration from configPath, or from the default location
// when configPath is empty. A missing default file is not an error.
// Environment variables override file values, e.g. XFSCAT_LOGGING_LEVEL.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("XFSCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys must be known to viper for AutomaticEnv to reach them
	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.format", defaultLogFormat)
	v.SetDefault("output.color", defaultColor)
	v.SetDefault("output.human_sizes", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/xfscat, falling back to
// ~/.config/xfscat.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "xfscat")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "xfscat")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
