package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvBackend, EnvConcurrency, EnvBaseURL} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Backend != BackendGitHub || cfg.Concurrency != 4 || cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Retry.InitialDelay != 500*time.Millisecond {
		t.Errorf("unexpected initial delay: %v", cfg.Retry.InitialDelay)
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing explicit config, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "orgsync", "config.yaml")

	input := Default()
	input.Backend = BackendMemory
	input.Concurrency = 8
	input.Retry.InitialDelay = 2 * time.Second
	input.ProtectionRemoval = string(planning.RemovalPrune)
	if err := Save(path, input); err != nil {
		t.Fatalf("save config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Backend != BackendMemory || cfg.Concurrency != 8 || cfg.Retry.InitialDelay != 2*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	removal, _ := cfg.Removal()
	if removal != planning.RemovalPrune {
		t.Errorf("expected prune, got %s", removal)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("github:\n  base_url: https://ghe.example.com/api/v3/\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.GitHub.BaseURL != "https://ghe.example.com/api/v3/" {
		t.Errorf("unexpected base url: %s", cfg.GitHub.BaseURL)
	}
	if cfg.GitHub.TokenEnv != "GITHUB_TOKEN" || cfg.Concurrency != 4 {
		t.Errorf("defaults should survive a partial file: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvBackend, BackendMemory)
	t.Setenv(EnvConcurrency, "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Backend != BackendMemory || cfg.Concurrency != 2 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "gitlab" }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Retry.InitialDelay = -time.Second }},
		{"bad removal policy", func(c *Config) { c.ProtectionRemoval = "sometimes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestInvalidEnvConcurrency(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(name string) string {
		if name == EnvConcurrency {
			return "lots"
		}
		return ""
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestToken(t *testing.T) {
	cfg := Default()
	cfg.GitHub.TokenEnv = "ACME_TOKEN"
	env := map[string]string{"ACME_TOKEN": "secret", "GITHUB_TOKEN": "other"}

	if got := cfg.Token(func(k string) string { return env[k] }); got != "secret" {
		t.Errorf("expected token from ACME_TOKEN, got %q", got)
	}
}
