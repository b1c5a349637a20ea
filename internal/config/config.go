// Package config holds the central configuration struct and its
// file/env loaders.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// PostgresConfig holds Postgres connection settings. An empty DSN
// disables the account endpoints and runs the server feed-only.
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// CacheConfig controls the read-through feed cache.
type CacheConfig struct {
	Prefix string `json:"prefix" yaml:"prefix"`
	// TTL is the primary cache lifetime for fetched feed payloads.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
	// StaleTTLFactor multiplies TTL for the last-known-good slot used
	// when the upstream is down. Zero disables the slot.
	StaleTTLFactor int `json:"stale_ttl_factor" yaml:"stale_ttl_factor"`
	// Tiered puts a short-lived in-process layer in front of Redis.
	Tiered bool          `json:"tiered" yaml:"tiered"`
	L1TTL  time.Duration `json:"l1_ttl" yaml:"l1_ttl"`
}

// RedditConfig holds the Reddit feed settings
type RedditConfig struct {
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	Listing   string        `json:"listing" yaml:"listing"`
	UserAgent string        `json:"user_agent" yaml:"user_agent"`
	PageSize  int           `json:"page_size" yaml:"page_size"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// TwitterConfig holds the Twitter feed settings
type TwitterConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	BearerToken string        `json:"bearer_token" yaml:"bearer_token"`
	Query       string        `json:"query" yaml:"query"`
	PageSize    int           `json:"page_size" yaml:"page_size"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// FeedsConfig groups the upstream feed providers.
type FeedsConfig struct {
	Reddit  RedditConfig  `json:"reddit" yaml:"reddit"`
	Twitter TwitterConfig `json:"twitter" yaml:"twitter"`
}

// AuthConfig holds JWT settings
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string        `json:"issuer" yaml:"issuer"`
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
}

// RateLimitConfig holds API rate limiting settings
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Requests per window for anonymous clients.
	AnonymousLimit int `json:"anonymous_limit" yaml:"anonymous_limit"`
	// Requests per window for authenticated users.
	UserLimit int           `json:"user_limit" yaml:"user_limit"`
	Window    time.Duration `json:"window" yaml:"window"`
}

// ObservabilityConfig holds logging, metrics and tracing settings
type ObservabilityConfig struct {
	LogLevel      string `json:"log_level" yaml:"log_level"`
	LogFormat     string `json:"log_format" yaml:"log_format"`
	MetricsPath   string `json:"metrics_path" yaml:"metrics_path"`
	TracesEnabled bool   `json:"traces_enabled" yaml:"traces_enabled"`
	OTLPEndpoint  string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Postgres      PostgresConfig      `json:"postgres" yaml:"postgres"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Feeds         FeedsConfig         `json:"feeds" yaml:"feeds"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},
		Cache: CacheConfig{
			Prefix:         "feedgate:",
			TTL:            15 * time.Minute,
			StaleTTLFactor: 4,
			Tiered:         false,
			L1TTL:          10 * time.Second,
		},
		Feeds: FeedsConfig{
			Reddit: RedditConfig{
				BaseURL:   "https://www.reddit.com",
				Listing:   "popular",
				UserAgent: "feedgate/1.0",
				PageSize:  25,
				Timeout:   3 * time.Second,
			},
			Twitter: TwitterConfig{
				BaseURL:  "https://api.twitter.com",
				Query:    "#technology",
				PageSize: 10,
				Timeout:  5 * time.Second,
			},
		},
		Auth: AuthConfig{
			Issuer:   "feedgate",
			TokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			AnonymousLimit: 60,
			UserLimit:      300,
			Window:         time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "text",
			MetricsPath: "/metrics",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension, on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FEEDGATE_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FEEDGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FEEDGATE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FEEDGATE_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("FEEDGATE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("FEEDGATE_CACHE_STALE_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.StaleTTLFactor = n
		}
	}
	if v := os.Getenv("FEEDGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("FEEDGATE_TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Feeds.Twitter.BearerToken = v
	}
	if v := os.Getenv("FEEDGATE_REDDIT_LISTING"); v != "" {
		cfg.Feeds.Reddit.Listing = v
	}
	if v := os.Getenv("FEEDGATE_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("FEEDGATE_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	if v := os.Getenv("FEEDGATE_OTLP_ENDPOINT"); v != "" {
		cfg.Observability.OTLPEndpoint = v
		cfg.Observability.TracesEnabled = true
	}
}
