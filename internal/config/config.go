// Package config loads and validates service config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Addr is the address the HTTP server listens on (e.g. :8080).
	Addr string `mapstructure:"DACHIDO_ADDR"`
	// DatabaseURL is the Postgres DSN; empty selects the in-memory store.
	DatabaseURL string `mapstructure:"DACHIDO_PG_DSN"`
	// AuthSecret signs session tokens. Required.
	AuthSecret string `mapstructure:"DACHIDO_AUTH_SECRET"`
	// TokenTTL is the session token lifetime (e.g. "30m").
	TokenTTL string `mapstructure:"DACHIDO_TOKEN_TTL"`
	// Env is the application environment ("development" or "production").
	// Cookies carry the Secure flag only in production.
	Env string `mapstructure:"DACHIDO_ENV"`
	// MigrationsDir points migration tooling at the SQL files.
	MigrationsDir string `mapstructure:"DACHIDO_MIGRATIONS_DIR"`
	// LoginRatePerMinute bounds login attempts per client address.
	LoginRatePerMinute int `mapstructure:"DACHIDO_LOGIN_RATE_PER_MINUTE"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DACHIDO_ADDR", ":8080")
	v.SetDefault("DACHIDO_PG_DSN", "")
	v.SetDefault("DACHIDO_AUTH_SECRET", "")
	v.SetDefault("DACHIDO_TOKEN_TTL", "30m")
	v.SetDefault("DACHIDO_ENV", "development")
	v.SetDefault("DACHIDO_MIGRATIONS_DIR", "ops/migrations/sql")
	v.SetDefault("DACHIDO_LOGIN_RATE_PER_MINUTE", 30)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Addr == "" {
		return nil, errors.New("config: DACHIDO_ADDR must be set")
	}
	if cfg.AuthSecret == "" {
		return nil, errors.New("config: DACHIDO_AUTH_SECRET must be set")
	}
	if cfg.LoginRatePerMinute <= 0 {
		return nil, errors.New("config: DACHIDO_LOGIN_RATE_PER_MINUTE must be positive")
	}

	return &cfg, nil
}

// TokenLifetime parses TokenTTL as a duration. Returns 30m if unset or invalid.
func (c *Config) TokenLifetime() time.Duration {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// Production reports whether the service runs in the production environment.
func (c *Config) Production() bool {
	return c.Env == "production"
}
