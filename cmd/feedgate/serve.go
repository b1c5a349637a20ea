package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/feedgate/feedgate/internal/api"
	"github.com/feedgate/feedgate/internal/auth"
	"github.com/feedgate/feedgate/internal/cache"
	"github.com/feedgate/feedgate/internal/config"
	"github.com/feedgate/feedgate/internal/feed"
	"github.com/feedgate/feedgate/internal/logging"
	"github.com/feedgate/feedgate/internal/metrics"
	"github.com/feedgate/feedgate/internal/observability"
	"github.com/feedgate/feedgate/internal/ratelimit"
	"github.com/feedgate/feedgate/internal/service"
	"github.com/feedgate/feedgate/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr string
		logLevel string
		pgDSN    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Server.Addr = httpAddr
			}
			if logLevel != "" {
				cfg.Observability.LogLevel = logLevel
			}
			if pgDSN != "" {
				cfg.Postgres.DSN = pgDSN
			}
			return runServer(cfg)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&pgDSN, "postgres", "", "Postgres DSN (empty runs feed-only)")

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	ctx := context.Background()

	logging.InitStructured(cfg.Observability.LogFormat, cfg.Observability.LogLevel)
	metrics.Init("feedgate")

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.TracesEnabled,
		Exporter:    "otlp-http",
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: "feedgate",
		SampleRate:  1.0,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.Shutdown(ctx)

	// Cache: Redis when configured, in-process otherwise. The Redis
	// client is shared with the rate limiter.
	var (
		feedCache   cache.Cache
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rc := cache.NewRedisCacheFromClient(redisClient, cfg.Cache.Prefix)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
		}
		feedCache = rc
		logging.Op().Info("redis cache ready", "addr", cfg.Redis.Addr, "prefix", cfg.Cache.Prefix)
	} else {
		feedCache = cache.NewInMemoryCache()
		logging.Op().Warn("no redis configured, using in-process cache")
	}
	if cfg.Cache.Tiered && redisClient != nil {
		feedCache = cache.NewTieredCache(cache.NewInMemoryCache(), feedCache, cfg.Cache.L1TTL)
		logging.Op().Info("tiered cache enabled", "l1_ttl", cfg.Cache.L1TTL)
	}
	defer feedCache.Close()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	feedSvc := feed.NewService(feedCache, feed.WithStaleFactor(cfg.Cache.StaleTTLFactor))

	serverCfg := api.ServerConfig{
		Registry:     registry,
		FeedSvc:      feedSvc,
		Cache:        feedCache,
		RateLimitCfg: &cfg.RateLimit,
		Server:       cfg.Server,
		MetricsPath:  cfg.Observability.MetricsPath,
	}
	if redisClient != nil {
		serverCfg.RateLimitRedis = ratelimit.NewRedisBackend(redisClient)
	}

	// Account endpoints need Postgres and a JWT secret; without a DSN
	// the server runs feed-only.
	if cfg.Postgres.DSN != "" {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when postgres is configured")
		}
		pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()

		jwt, err := auth.NewJWT(auth.JWTConfig{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			TokenTTL: cfg.Auth.TokenTTL,
		})
		if err != nil {
			return err
		}

		serverCfg.Store = pgStore
		serverCfg.Users = service.NewUsers(pgStore, jwt)
		serverCfg.Auth = jwt
		logging.Op().Info("account endpoints enabled")
	} else {
		logging.Op().Warn("no postgres configured, running feed-only")
	}

	server := api.StartHTTPServer(cfg.Server.Addr, serverCfg)
	logging.Op().Info("server listening", "addr", cfg.Server.Addr, "feeds", registry.Names())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Op().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Op().Warn("server shutdown", "error", err)
	}
	return nil
}

// buildRegistry wires the configured providers. Cache keys carry the
// listing/query context so a config change cannot serve stale data
// for a different feed.
func buildRegistry(cfg *config.Config) (*feed.Registry, error) {
	registry := feed.NewRegistry()

	reddit := feed.NewRedditFetcher(feed.RedditConfig{
		BaseURL:   cfg.Feeds.Reddit.BaseURL,
		Listing:   cfg.Feeds.Reddit.Listing,
		UserAgent: cfg.Feeds.Reddit.UserAgent,
		PageSize:  cfg.Feeds.Reddit.PageSize,
		Timeout:   cfg.Feeds.Reddit.Timeout,
	})
	if err := registry.Register(&feed.Definition{
		Name:     "reddit",
		CacheKey: "reddit:" + cfg.Feeds.Reddit.Listing + "_posts",
		TTL:      cfg.Cache.TTL,
		MaxItems: cfg.Feeds.Reddit.PageSize,
		Fetcher:  reddit,
	}); err != nil {
		return nil, err
	}

	if cfg.Feeds.Twitter.BearerToken != "" {
		twitter := feed.NewTwitterFetcher(feed.TwitterConfig{
			BaseURL:     cfg.Feeds.Twitter.BaseURL,
			BearerToken: cfg.Feeds.Twitter.BearerToken,
			Query:       cfg.Feeds.Twitter.Query,
			PageSize:    cfg.Feeds.Twitter.PageSize,
			Timeout:     cfg.Feeds.Twitter.Timeout,
		})
		if err := registry.Register(&feed.Definition{
			Name:     "twitter",
			CacheKey: "twitter:" + sanitizeKeyPart(cfg.Feeds.Twitter.Query) + "_posts",
			TTL:      cfg.Cache.TTL,
			MaxItems: cfg.Feeds.Twitter.PageSize,
			Fetcher:  twitter,
		}); err != nil {
			return nil, err
		}
	} else {
		logging.Op().Warn("twitter feed disabled, no bearer token configured")
	}

	return registry, nil
}

// sanitizeKeyPart strips characters that read poorly in cache keys.
func sanitizeKeyPart(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "search"
	}
	return string(out)
}
