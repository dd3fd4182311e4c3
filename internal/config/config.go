// Package config loads application configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultPollInterval = 3 * time.Minute
	DefaultCallTimeout  = 30 * time.Second
	DefaultListenAddr   = "127.0.0.1:8743"

	// minPollInterval is the floor for the refresh cadence. GitHub search has
	// its own aggressive rate limit, so anything faster only burns quota.
	minPollInterval = 30 * time.Second
)

// Config holds the daemon configuration.
type Config struct {
	GitHubToken    string        `yaml:"github_token"`
	GitHubUsername string        `yaml:"github_username"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	ListenAddr     string        `yaml:"listen_addr"`
	DBPath         string        `yaml:"db_path"`
	NotifyCommand  string        `yaml:"notify_command"`
}

// DefaultPath returns the conventional config file location,
// ~/.config/gitbar/config.yaml, or "" when the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gitbar", "config.yaml")
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist), applies GITBAR_* environment overrides, fills defaults,
// and validates the result.
//
// Recognized environment variables: GITBAR_GITHUB_TOKEN,
// GITBAR_GITHUB_USERNAME, GITBAR_POLL_INTERVAL, GITBAR_CALL_TIMEOUT,
// GITBAR_LISTEN_ADDR, GITBAR_DB_PATH, GITBAR_NOTIFY_COMMAND.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fine, environment-only configuration.
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	if v, ok := os.LookupEnv("GITBAR_GITHUB_TOKEN"); ok {
		cfg.GitHubToken = v
	}
	if v, ok := os.LookupEnv("GITBAR_GITHUB_USERNAME"); ok {
		cfg.GitHubUsername = v
	}
	if v, ok := os.LookupEnv("GITBAR_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("GITBAR_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("GITBAR_NOTIFY_COMMAND"); ok {
		cfg.NotifyCommand = v
	}
	if v, ok := os.LookupEnv("GITBAR_POLL_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("GITBAR_POLL_INTERVAL has invalid duration %q: %w", v, err)
		}
		cfg.PollInterval = parsed
	}
	if v, ok := os.LookupEnv("GITBAR_CALL_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("GITBAR_CALL_TIMEOUT has invalid duration %q: %w", v, err)
		}
		cfg.CallTimeout = parsed
	}

	cfg.applyDefaults()

	if cfg.GitHubToken == "" {
		return nil, fmt.Errorf("github_token must be set (config file or GITBAR_GITHUB_TOKEN)")
	}
	if cfg.GitHubUsername == "" {
		return nil, fmt.Errorf("github_username must be set (config file or GITBAR_GITHUB_USERNAME)")
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollInterval < minPollInterval {
		c.PollInterval = minPollInterval
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DBPath == "" {
		c.DBPath = "gitbar.db"
	}
}
