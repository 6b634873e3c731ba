package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Retry    RetryConfig    `toml:"retry"`
	OAuth    OAuthConfig    `toml:"oauth"`
	Database DatabaseConfig `toml:"database"`
	Guard    GuardConfig    `toml:"guard"`
	Batch    BatchConfig    `toml:"batch"`
}

// APIConfig points the request client at the backend.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
}

// TimeoutsConfig holds one budget per timeout tier.
type TimeoutsConfig struct {
	Short    Duration `toml:"short"`
	Standard Duration `toml:"standard"`
	Long     Duration `toml:"long"`
	Upload   Duration `toml:"upload"`
}

// RetryConfig controls transport-failure retries.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BackoffStep Duration `toml:"backoff_step"`
}

// OAuthConfig contains the identity provider settings used for the authorization code redirect.
type OAuthConfig struct {
	Domain            string   `toml:"domain"`
	ClientID          string   `toml:"client_id"`
	RedirectURI       string   `toml:"redirect_uri"`
	LogoutRedirectURI string   `toml:"logout_redirect_uri"`
	Scopes            []string `toml:"scopes"`
	Audience          string   `toml:"audience"`
	ListenAddr        string   `toml:"listen_addr"`
	CallbackPath      string   `toml:"callback_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// GuardConfig selects where duplicate-callback guards are recorded.
type GuardConfig struct {
	Backend  string   `toml:"backend"` // sqlite or redis
	RedisURL string   `toml:"redis_url"`
	TTL      Duration `toml:"ttl"`
}

// BatchConfig tunes concurrent image processing.
type BatchConfig struct {
	Workers int     `toml:"workers"`
	Rate    float64 `toml:"rate"` // requests per second
}

// Duration is a [time.Duration] that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// envOverrides lists the settings that may be overridden from the environment.
// Unset variables leave the pointer nil so the file value is kept.
type envOverrides struct {
	APIURL       *string `env:"IMGX_API_URL"`
	DatabasePath *string `env:"IMGX_DATABASE_PATH"`
	ClientID     *string `env:"IMGX_OAUTH_CLIENT_ID"`
	Domain       *string `env:"IMGX_OAUTH_DOMAIN"`
	RedirectURI  *string `env:"IMGX_OAUTH_REDIRECT_URI"`
	GuardBackend *string `env:"IMGX_GUARD_BACKEND"`
	RedisURL     *string `env:"IMGX_REDIS_URL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides config values with any IMGX_* environment variables that are set.
func ApplyEnv(c *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.API.BaseURL, o.APIURL)
	set(&c.Database.Path, o.DatabasePath)
	set(&c.OAuth.ClientID, o.ClientID)
	set(&c.OAuth.Domain, o.Domain)
	set(&c.OAuth.RedirectURI, o.RedirectURI)
	set(&c.Guard.Backend, o.GuardBackend)
	set(&c.Guard.RedisURL, o.RedisURL)

	return c.Validate()
}

// Validate checks the values the request client and guard store depend on.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidConfig)
	}
	for name, d := range map[string]Duration{
		"short":    c.Timeouts.Short,
		"standard": c.Timeouts.Standard,
		"long":     c.Timeouts.Long,
		"upload":   c.Timeouts.Upload,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%w: timeouts.%s must be positive", ErrInvalidConfig, name)
		}
	}
	switch c.Guard.Backend {
	case "", "sqlite", "redis":
	default:
		return fmt.Errorf("%w: unknown guard backend %q", ErrInvalidConfig, c.Guard.Backend)
	}
	return nil
}
