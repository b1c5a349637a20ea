package api

import (
	"net/http"

	"github.com/feedgate/feedgate/internal/auth"
	"github.com/feedgate/feedgate/internal/cache"
	"github.com/feedgate/feedgate/internal/config"
	"github.com/feedgate/feedgate/internal/feed"
	"github.com/feedgate/feedgate/internal/logging"
	"github.com/feedgate/feedgate/internal/metrics"
	"github.com/feedgate/feedgate/internal/observability"
	"github.com/feedgate/feedgate/internal/ratelimit"
	"github.com/feedgate/feedgate/internal/service"
)

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Registry *feed.Registry
	FeedSvc  *feed.Service
	Cache    cache.Cache
	// Users and Store are nil in feed-only mode (no Postgres DSN).
	Users          *service.Users
	Store          Pinger
	Auth           *auth.JWT
	RateLimitCfg   *config.RateLimitConfig
	RateLimitRedis ratelimit.Backend
	Server         config.ServerConfig
	MetricsPath    string
}

// publicPaths are reachable without a bearer token. Feed reads stay
// open; everything touching an account requires auth.
var publicPaths = []string{
	"/health", "/health/*", "/metrics",
	"/api/auth/register", "/api/auth/login",
	"/api/feeds", "/api/feeds/*",
}

// StartHTTPServer creates and starts the HTTP server with the feed,
// account, and health handlers. The returned server is already serving.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	mux := http.NewServeMux()

	feedHandler := &FeedHandler{Registry: cfg.Registry, Svc: cfg.FeedSvc}
	feedHandler.RegisterRoutes(mux)

	if cfg.Users != nil {
		userHandler := &UserHandler{Users: cfg.Users}
		userHandler.RegisterRoutes(mux)
	}

	healthHandler := NewHealthHandler(cfg.Cache, cfg.Store)
	healthHandler.RegisterRoutes(mux)

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle("GET "+metricsPath, metrics.Global().Handler())

	// Wrapping order matters: tracing is innermost, then rate limiting,
	// with auth outermost so the limiter can key on identity.
	var handler http.Handler = mux
	handler = observability.HTTPMiddleware(handler)

	if cfg.RateLimitCfg != nil && cfg.RateLimitCfg.Enabled {
		backend := cfg.RateLimitRedis
		if backend == nil {
			backend = ratelimit.NewLocalTokenBucketBackend()
		} else {
			backend = ratelimit.NewFallbackBackend(backend)
		}
		limiter := ratelimit.FromConfig(backend, *cfg.RateLimitCfg)
		exempt := []string{"/health", "/health/*", metricsPath}
		handler = ratelimit.Middleware(limiter, exempt)(handler)
		logging.Op().Info("rate limiting enabled",
			"anonymous_limit", cfg.RateLimitCfg.AnonymousLimit,
			"user_limit", cfg.RateLimitCfg.UserLimit,
			"window", cfg.RateLimitCfg.Window)
	}

	if cfg.Auth != nil {
		handler = auth.Middleware(cfg.Auth, publicPaths)(handler)
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}
