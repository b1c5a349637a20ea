// Package ratelimit provides token-bucket rate limiting for the API,
// backed by Redis with an in-process fallback.
package ratelimit

import (
	"context"
	"time"

	"github.com/feedgate/feedgate/internal/config"
)

// Backend performs an atomic token bucket check.
type Backend interface {
	CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error)
}

// TierConfig holds the bucket parameters for one caller class.
type TierConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// Limiter applies per-tier token buckets through a Backend.
type Limiter struct {
	backend     Backend
	tiers       map[string]TierConfig
	defaultTier TierConfig
}

// New creates a rate limiter with the given tier table.
func New(backend Backend, tiers map[string]TierConfig, defaultTier TierConfig) *Limiter {
	if tiers == nil {
		tiers = make(map[string]TierConfig)
	}
	return &Limiter{backend: backend, tiers: tiers, defaultTier: defaultTier}
}

// FromConfig builds a limiter with "anonymous" and "user" tiers derived
// from the rate limit settings. A window of W with limit N becomes a
// bucket of burst N refilling at N/W per second.
func FromConfig(backend Backend, cfg config.RateLimitConfig) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	anon := tierFromWindow(cfg.AnonymousLimit, window)
	user := tierFromWindow(cfg.UserLimit, window)
	return New(backend, map[string]TierConfig{
		"anonymous": anon,
		"user":      user,
	}, anon)
}

func tierFromWindow(limit int, window time.Duration) TierConfig {
	if limit <= 0 {
		limit = 60
	}
	return TierConfig{
		RequestsPerSecond: float64(limit) / window.Seconds(),
		BurstSize:         limit,
	}
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allow checks whether one request is allowed for the given key and tier.
func (l *Limiter) Allow(ctx context.Context, key, tier string) (Result, error) {
	return l.AllowN(ctx, key, tier, 1)
}

// AllowN checks whether n requests are allowed.
func (l *Limiter) AllowN(ctx context.Context, key, tier string, n int) (Result, error) {
	cfg := l.getTierConfig(tier)

	allowed, remaining, err := l.backend.CheckRateLimit(ctx, key, cfg.BurstSize, cfg.RequestsPerSecond, n)
	if err != nil {
		return Result{}, err
	}

	// When the bucket will be full again.
	tokensNeeded := float64(cfg.BurstSize) - float64(remaining)
	refillSeconds := tokensNeeded / cfg.RequestsPerSecond
	resetAt := time.Now().Add(time.Duration(refillSeconds * float64(time.Second)))

	return Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

func (l *Limiter) getTierConfig(tier string) TierConfig {
	if cfg, ok := l.tiers[tier]; ok {
		return cfg
	}
	return l.defaultTier
}

// KeyForUser returns the bucket key for an authenticated user.
func KeyForUser(userID string) string {
	return "user:" + userID
}

// KeyForIP returns the bucket key for an anonymous client IP.
func KeyForIP(ip string) string {
	return "ip:" + ip
}
