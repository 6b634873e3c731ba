package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./imgx.db" {
			t.Errorf("expected database path ./imgx.db, got %s", config.Database.Path)
		}

		if config.API.BaseURL != "http://localhost:8000" {
			t.Errorf("expected api base URL http://localhost:8000, got %s", config.API.BaseURL)
		}

		tiers := map[string]time.Duration{
			"short":    config.Timeouts.Short.Duration,
			"standard": config.Timeouts.Standard.Duration,
			"long":     config.Timeouts.Long.Duration,
			"upload":   config.Timeouts.Upload.Duration,
		}
		want := map[string]time.Duration{
			"short":    15 * time.Second,
			"standard": 30 * time.Second,
			"long":     60 * time.Second,
			"upload":   120 * time.Second,
		}
		for name, d := range want {
			if tiers[name] != d {
				t.Errorf("expected %s tier %v, got %v", name, d, tiers[name])
			}
		}

		if config.Retry.MaxAttempts != 3 {
			t.Errorf("expected 3 attempts, got %d", config.Retry.MaxAttempts)
		}
		if config.Retry.BackoffStep.Duration != 2*time.Second {
			t.Errorf("expected backoff step 2s, got %v", config.Retry.BackoffStep.Duration)
		}

		if len(config.OAuth.Scopes) != 3 || config.OAuth.Scopes[0] != "openid" {
			t.Errorf("expected openid profile email scopes, got %v", config.OAuth.Scopes)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[api]
base_url = "https://api.example.com"

[timeouts]
short = "5s"

[retry]
max_attempts = 5
backoff_step = "250ms"

[oauth]
domain = "tenant.example.com"
client_id = "test_client_id"

[guard]
backend = "redis"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.API.BaseURL != "https://api.example.com" {
			t.Errorf("expected base URL https://api.example.com, got %s", config.API.BaseURL)
		}
		if config.Timeouts.Short.Duration != 5*time.Second {
			t.Errorf("expected short tier 5s, got %v", config.Timeouts.Short.Duration)
		}
		if config.Timeouts.Upload.Duration != 120*time.Second {
			t.Errorf("missing keys should keep defaults, got upload %v", config.Timeouts.Upload.Duration)
		}
		if config.Retry.MaxAttempts != 5 {
			t.Errorf("expected 5 attempts, got %d", config.Retry.MaxAttempts)
		}
		if config.OAuth.ClientID != "test_client_id" {
			t.Errorf("expected client_id test_client_id, got %s", config.OAuth.ClientID)
		}
		if config.Guard.Backend != "redis" {
			t.Errorf("expected redis guard backend, got %s", config.Guard.Backend)
		}
	})

	t.Run("LoadConfig Rejects Bad Duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[timeouts]\nshort = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected error for unparseable duration")
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("Overrides Set Variables", func(t *testing.T) {
		t.Setenv("IMGX_API_URL", "https://env.example.com")
		t.Setenv("IMGX_GUARD_BACKEND", "redis")

		config := DefaultConfig()
		if err := ApplyEnv(config); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if config.API.BaseURL != "https://env.example.com" {
			t.Errorf("expected env base URL, got %s", config.API.BaseURL)
		}
		if config.Guard.Backend != "redis" {
			t.Errorf("expected redis backend, got %s", config.Guard.Backend)
		}
		if config.Database.Path != "./imgx.db" {
			t.Errorf("unset variables should keep file values, got %s", config.Database.Path)
		}
	})

	t.Run("Invalid Backend", func(t *testing.T) {
		t.Setenv("IMGX_GUARD_BACKEND", "etcd")

		err := ApplyEnv(DefaultConfig())
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
