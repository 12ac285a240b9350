package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/docsync/internal/conflict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	cfg := Default()
	cfg.RootDir = t.TempDir()
	cfg.BaseURL = "https://docs.example.com"
	cfg.Path = filepath.Join(t.TempDir(), "docsync.json")
	cfg.LogFile = ""
	return cfg
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := validConfig(t)
	cfg.Strategy = ""
	cfg.Debounce = 0

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.RootDir))
	assert.Equal(t, conflict.Manual, cfg.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Debounce)
	assert.Equal(t, filepath.Join(cfg.RootDir, ".docsync"), cfg.MetaDir())

	opts := cfg.EngineOptions()
	assert.Equal(t, 5, opts.Concurrency)
	assert.Equal(t, 3, opts.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, opts.RetryBackoff)
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mod     func(*Config)
		wantErr string
	}{
		{"no root", func(c *Config) { c.RootDir = "" }, "root dir"},
		{"no base url", func(c *Config) { c.BaseURL = "" }, "base url"},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://docs.example.com" }, "base url"},
		{"bad strategy", func(c *Config) { c.Strategy = "newest" }, "strategy"},
		{"bad converter", func(c *Config) { c.Converter = "docx" }, "docx"},
		{"concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"retries", func(c *Config) { c.RetryAttempts = 0 }, "retry attempts"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mod(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_SaveOmitsToken(t *testing.T) {
	cfg := validConfig(t)
	cfg.Token = "secret"
	cfg.SpaceID = "ENG"
	require.NoError(t, cfg.Save(cfg.Path))

	data, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"space_id": "ENG"`)
	assert.NotContains(t, string(data), "secret")
}

func TestConfig_SaveYAML(t *testing.T) {
	cfg := validConfig(t)
	cfg.Token = "secret"
	cfg.SpaceID = "ENG"
	cfg.Path = filepath.Join(t.TempDir(), "docsync.yaml")
	require.NoError(t, cfg.Save(cfg.Path))

	data, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "space_id: ENG\n")
	assert.Contains(t, string(data), "retry_backoff: 500ms\n")
	assert.NotContains(t, string(data), "secret")
	assert.NotContains(t, string(data), "{")
}

func TestConfig_SDKConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Token = "tok"
	sdk := cfg.SDKConfig()
	assert.Equal(t, "https://docs.example.com", sdk.BaseURL)
	assert.Equal(t, "tok", sdk.Token)
}
