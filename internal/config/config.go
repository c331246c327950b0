// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package config loads application configuration from three layers with
// clear precedence: environment variables over an optional YAML file
// over built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Auth      AuthConfig      `koanf:"auth"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ServerConfig declares the HTTP listener settings.
type ServerConfig struct {
	Host               string   `koanf:"host"`
	Port               int      `koanf:"port"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	TransportRateLimit int      `koanf:"transport_rate_limit"`
	AllowedOrigins     []string `koanf:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig declares log output settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`

	// Caller adds file:line to every entry.
	Caller bool `koanf:"caller"`
}

// GatewayConfig declares pipeline-wide settings.
type GatewayConfig struct {
	// DefaultTimeout bounds handlers that set no timeout of their own.
	DefaultTimeout time.Duration `koanf:"default_timeout"`

	// BreakerThreshold is the consecutive-failure count that opens an
	// endpoint's circuit breaker; 0 disables breakers.
	BreakerThreshold uint32 `koanf:"breaker_threshold"`

	// BreakerCooldown is how long an open breaker waits before probing.
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// CacheConfig declares the response-cache backend.
type CacheConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`

	// Capacity bounds the memory backend's entry count.
	Capacity int `koanf:"capacity"`

	// Path is the badger backend's database directory.
	Path string `koanf:"path"`

	// SweepInterval is how often the janitor drops expired entries.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RateLimitConfig declares limiter housekeeping settings.
type RateLimitConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxIdle       time.Duration `koanf:"max_idle"`
}

// AuthConfig declares identity settings.
type AuthConfig struct {
	// JWTSecret signs and validates bearer tokens; at least 32 bytes.
	// Empty disables the bearer method.
	JWTSecret string `koanf:"jwt_secret"`

	// JWTIssuer, when set, is required in token iss claims.
	JWTIssuer string `koanf:"jwt_issuer"`

	// SessionTTL is how long sessions stay valid.
	SessionTTL time.Duration `koanf:"session_ttl"`
}

// MetricsConfig declares statistics emission settings.
type MetricsConfig struct {
	// EmitInterval is how often endpoint snapshots are logged.
	EmitInterval time.Duration `koanf:"emit_interval"`
}

// defaultConfig returns the built-in defaults, overridden by file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ShutdownTimeout:    10 * time.Second,
			TransportRateLimit: 0,
			AllowedOrigins:     nil,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Gateway: GatewayConfig{
			DefaultTimeout:   30 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			Capacity:      10000,
			Path:          "/data/portcullis/cache",
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			SweepInterval: 5 * time.Minute,
			MaxIdle:       time.Hour,
		},
		Auth: AuthConfig{
			JWTSecret:  "",
			JWTIssuer:  "portcullis",
			SessionTTL: 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			EmitInterval: time.Minute,
		},
	}
}

// Validate rejects configurations that cannot produce a working server.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	switch c.Cache.Backend {
	case "memory":
	case "badger":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the badger backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or badger, got %q", c.Cache.Backend)
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Gateway.DefaultTimeout <= 0 {
		return fmt.Errorf("gateway.default_timeout must be positive")
	}

	return nil
}
