package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
	"gopkg.in/yaml.v3"
)

// Supported remote backends.
const (
	BackendGitHub = "github"
	BackendMemory = "memory"
)

// Environment overrides.
const (
	EnvBackend     = "ORGSYNC_BACKEND"
	EnvConcurrency = "ORGSYNC_CONCURRENCY"
	EnvBaseURL     = "ORGSYNC_GITHUB_BASE_URL"
)

const defaultTokenEnv = "GITHUB_TOKEN"

// ErrInvalidConfig marks configuration values the CLI cannot run with.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the CLI configuration file.
type Config struct {
	Backend           string       `yaml:"backend"`
	GitHub            GitHubConfig `yaml:"github"`
	Concurrency       int          `yaml:"concurrency"`
	Retry             RetryConfig  `yaml:"retry"`
	ProtectionRemoval string       `yaml:"protection_removal"`
	// HistoryFile, when set, receives one hash-chained line per run.
	HistoryFile string `yaml:"history_file,omitempty"`
}

type GitHubConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend:     BackendGitHub,
		GitHub:      GitHubConfig{TokenEnv: defaultTokenEnv},
		Concurrency: 4,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
		},
		ProtectionRemoval: string(planning.RemovalIgnore),
	}
}

// DefaultPath is $XDG_CONFIG_HOME/orgsync/config.yaml (or the platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "orgsync", "config.yaml"), nil
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path means DefaultPath, which may be missing; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()

	// #nosec G304 -- config path is chosen by the operator
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal %s: %v", ErrInvalidConfig, path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("%w: failed to read config: %v", ErrInvalidConfig, err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment overrides.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBackend); v != "" {
		c.Backend = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		c.GitHub.BaseURL = v
	}
	if v := getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvConcurrency, v)
		}
		c.Concurrency = n
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGitHub, BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q (want %s or %s)", ErrInvalidConfig, c.Backend, BackendGitHub, BackendMemory)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1, got %d", ErrInvalidConfig, c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("%w: retry.initial_delay cannot be negative", ErrInvalidConfig)
	}
	if _, err := c.Removal(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Removal returns the configured protection removal policy.
func (c *Config) Removal() (planning.RemovalPolicy, error) {
	return planning.ParseRemovalPolicy(c.ProtectionRemoval)
}

// Token reads the GitHub token from the configured environment variable.
func (c *Config) Token(getenv func(string) string) string {
	name := c.GitHub.TokenEnv
	if name == "" {
		name = defaultTokenEnv
	}
	return getenv(name)
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	// G301: Use 0700 for directories
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
