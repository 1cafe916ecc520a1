package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/corral/pkg/errdefs"
)

// Config holds the engine configuration
type Config struct {
	// DataDir is where the BoltDB database lives
	DataDir string `yaml:"data_dir"`

	// Workers is the size of the action worker pool
	Workers int `yaml:"workers"`

	// PollInterval is the delay between dependent polls for waiting parents
	PollInterval time.Duration `yaml:"poll_interval"`

	// DefaultActionTimeout applies to actions created without an explicit
	// timeout. Zero means no deadline.
	DefaultActionTimeout time.Duration `yaml:"default_action_timeout"`

	// ListenAddr serves the metrics and health endpoints
	ListenAddr string `yaml:"listen_addr"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:              "/var/lib/corral",
		Workers:              4,
		PollInterval:         time.Second,
		DefaultActionTimeout: time.Hour,
		ListenAddr:           ":9090",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// UnmarshalYAML decodes through an intermediate struct so duration fields
// accept values like "100ms" or "1h". Fields absent from the document keep
// whatever the Config already holds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		DataDir              string    `yaml:"data_dir"`
		Workers              int       `yaml:"workers"`
		PollInterval         string    `yaml:"poll_interval"`
		DefaultActionTimeout string    `yaml:"default_action_timeout"`
		ListenAddr           string    `yaml:"listen_addr"`
		Log                  LogConfig `yaml:"log"`
	}{
		DataDir:              c.DataDir,
		Workers:              c.Workers,
		PollInterval:         c.PollInterval.String(),
		DefaultActionTimeout: c.DefaultActionTimeout.String(),
		ListenAddr:           c.ListenAddr,
		Log:                  c.Log,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	pollInterval, err := time.ParseDuration(raw.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid poll_interval %q: %v", raw.PollInterval, err)
	}
	actionTimeout, err := time.ParseDuration(raw.DefaultActionTimeout)
	if err != nil {
		return fmt.Errorf("invalid default_action_timeout %q: %v", raw.DefaultActionTimeout, err)
	}

	c.DataDir = raw.DataDir
	c.Workers = raw.Workers
	c.PollInterval = pollInterval
	c.DefaultActionTimeout = actionTimeout
	c.ListenAddr = raw.ListenAddr
	c.Log = raw.Log
	return nil
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Validation("failed to read config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errdefs.Validation("failed to parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for impossible values
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errdefs.Validation("data_dir must not be empty")
	}
	if c.Workers <= 0 {
		return errdefs.Validation("workers must be positive, got %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return errdefs.Validation("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.DefaultActionTimeout < 0 {
		return errdefs.Validation("default_action_timeout must not be negative, got %s", c.DefaultActionTimeout)
	}
	return nil
}
