// Package config holds the settings shared by every docsync command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/openmined/docsync/internal/conflict"
	"github.com/openmined/docsync/internal/convert"
	"github.com/openmined/docsync/internal/docsdk"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/localfs"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/watch"
	"gopkg.in/yaml.v3"
)

// ConfigName is the config file name without extension. Files are looked up as
// docsync.json, docsync.yaml or docsync.yml.
const ConfigName = "docsync"

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".docsync")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, ConfigName+".json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "docsync.log")
)

var (
	ErrNoRootDir = errors.New("root dir is required")
	ErrNoBaseURL = errors.New("base url is required")
)

type Config struct {
	RootDir       string            `json:"root_dir" yaml:"root_dir" mapstructure:"root_dir"`
	BaseURL       string            `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	SpaceID       string            `json:"space_id,omitempty" yaml:"space_id,omitempty" mapstructure:"space_id"`
	Token         string            `json:"-" yaml:"-" mapstructure:"token"`
	Concurrency   int               `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	RetryAttempts int               `json:"retry_attempts" yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration     `json:"retry_backoff" yaml:"retry_backoff" mapstructure:"retry_backoff"`
	Strategy      conflict.Strategy `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	Converter     string            `json:"converter,omitempty" yaml:"converter,omitempty" mapstructure:"converter"`
	Debounce      time.Duration     `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
	LogFile       string            `json:"log_file,omitempty" yaml:"log_file,omitempty" mapstructure:"log_file"`
	Path          string            `json:"-" yaml:"-" mapstructure:"-"`
}

// Default returns a Config with every tunable at its default.
func Default() *Config {
	return &Config{
		RootDir:       ".",
		Concurrency:   engine.DefaultConcurrency,
		RetryAttempts: engine.DefaultRetryAttempts,
		RetryBackoff:  engine.DefaultRetryBackoff,
		Strategy:      conflict.Manual,
		Debounce:      watch.DefaultDebounce,
		LogFile:       DefaultLogFilePath,
		Path:          DefaultConfigPath,
	}
}

// Validate checks the config and normalizes paths to absolute ones.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return ErrNoRootDir
	}
	root, err := utils.ResolvePath(c.RootDir)
	if err != nil {
		return fmt.Errorf("root dir: %w", err)
	}
	c.RootDir = root

	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base url %q: must be http(s)", c.BaseURL)
	}

	if c.Strategy == "" {
		c.Strategy = conflict.Manual
	}
	if _, err := convert.ByName(c.Converter); err != nil {
		return err
	}
	if c.Debounce <= 0 {
		c.Debounce = watch.DefaultDebounce
	}
	if err := c.EngineOptions().Validate(); err != nil {
		return err
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}
	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
	}
	return nil
}

// MetaDir is where the manifest, backups and history live.
func (c *Config) MetaDir() string {
	return filepath.Join(c.RootDir, localfs.MetaDir)
}

func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Concurrency:   c.Concurrency,
		RetryAttempts: c.RetryAttempts,
		RetryBackoff:  c.RetryBackoff,
		Strategy:      c.Strategy,
		SpaceID:       c.SpaceID,
	}
}

func (c *Config) SDKConfig() *docsdk.Config {
	return &docsdk.Config{BaseURL: c.BaseURL, Token: c.Token}
}

// Save writes the config as YAML for a .yaml or .yml path and as JSON otherwise.
// The token is never persisted.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
