package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "auto", cfg.Output.Color)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: DEBUG
  format: logfmt
output:
  color: never
  human_sizes: true
source:
  s3:
    region: eu-west-1
    endpoint: http://localhost:9000
    max_retries: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "logfmt", cfg.Logging.Format)
	assert.Equal(t, "never", cfg.Output.Color)
	assert.True(t, cfg.Output.HumanSizes)
	assert.Equal(t, "eu-west-1", cfg.Source.S3["region"])
	assert.EqualValues(t, 5, cfg.Source.S3["max_retries"])
}

func TestLoadDefaultLocation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "xfscat"), 0o755))
	require.NoError(t, os.WriteFile(DefaultConfigPath(), []byte("output:\n  color: always\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "always", cfg.Output.Color)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: warn\n")
	t.Setenv("XFSCAT_LOGGING_LEVEL", "error")
	t.Setenv("XFSCAT_OUTPUT_COLOR", "never")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "never", cfg.Output.Color)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad level", "logging:\n  level: loud\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"bad color", "output:\n  color: sometimes\n"},
		{"unknown s3 key", "source:\n  s3:\n    regoin: us-east-1\n"},
		{"negative retries", "source:\n  s3:\n    max_retries: -1\n"},
		{"not yaml", "logging: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
