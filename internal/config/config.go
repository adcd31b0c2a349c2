// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then command-line flags.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/christopher-w1/gatekeeper/internal/xdg"
)

// Password hashing schemes.
const (
	SchemeSHA      = "sha"
	SchemeArgon2id = "argon2id"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr        string `koanf:"addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`
}

// AuthConfig holds API gating, session, and hashing settings.
type AuthConfig struct {
	APITokens       []string      `koanf:"api_tokens"`
	RequireAPIToken bool          `koanf:"require_api_token"`
	SessionTimeout  time.Duration `koanf:"session_timeout"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	PasswordScheme  string        `koanf:"password_scheme"`
}

// RateLimitConfig holds the login limiter settings.
type RateLimitConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	Window      time.Duration `koanf:"window"`
}

// DatabaseConfig holds the user store settings.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	InMemory bool   `koanf:"in_memory"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Database  DatabaseConfig  `koanf:"database"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: "127.0.0.1:9100",
			LogFormat:   "json",
		},
		Auth: AuthConfig{
			RequireAPIToken: true,
			SessionTimeout:  24 * time.Hour,
			SweepInterval:   5 * time.Minute,
			PasswordScheme:  SchemeSHA,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: 5,
			Window:      5 * time.Minute,
		},
	}
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here (e.g. --config) are ignored by the loader.
var flagKeys = map[string]string{
	"listen-addr":     "server.addr",
	"metrics-addr":    "server.metrics_addr",
	"log-format":      "server.log_format",
	"database-url":    "database.url",
	"in-memory":       "database.in_memory",
	"session-timeout": "auth.session_timeout",
}

// Load builds the configuration from defaults, the YAML file at path, and
// the given flags, in that order of precedence (later wins). An empty path
// falls back to the XDG default location, which may be absent; an explicit
// path must exist.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = xdg.DefaultConfigFile()
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("path", path).
				Wrap(err)
		}
	} else if explicit {
		return nil, oops.Code("CONFIG_INVALID").
			With("path", path).
			Errorf("config file not found")
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			mapped, ok := flagKeys[key]
			if !ok {
				return "", nil
			}
			return mapped, value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr is required")
	}
	if c.Server.LogFormat != "json" && c.Server.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			Errorf("server.log_format must be 'json' or 'text', got %q", c.Server.LogFormat)
	}
	if c.Auth.PasswordScheme != SchemeSHA && c.Auth.PasswordScheme != SchemeArgon2id {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.password_scheme must be %q or %q, got %q", SchemeSHA, SchemeArgon2id, c.Auth.PasswordScheme)
	}
	if c.Auth.SessionTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.session_timeout must be positive")
	}
	if c.Auth.RequireAPIToken && len(c.Auth.APITokens) == 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("auth.api_tokens must be set when auth.require_api_token is enabled")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("ratelimit.max_attempts must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("ratelimit.window must be positive")
	}
	if !c.Database.InMemory && c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url is required unless database.in_memory is enabled")
	}
	return nil
}
