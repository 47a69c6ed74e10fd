package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/cache"
	"github.com/conduit-lang/hierroutes/internal/config"
	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/resolver"
	"github.com/conduit-lang/hierroutes/internal/service"
	"github.com/conduit-lang/hierroutes/internal/web/auth"
	"github.com/conduit-lang/hierroutes/internal/web/events"
	"github.com/conduit-lang/hierroutes/internal/web/middleware"
	"github.com/conduit-lang/hierroutes/internal/web/profiling"
	"github.com/conduit-lang/hierroutes/internal/web/ratelimit"
	"github.com/conduit-lang/hierroutes/internal/web/router"
)

// MetricsPath serves the prometheus registry
const MetricsPath = "/metrics"

// DefaultTokenTTL is the lifetime of tokens accepted by the admin API when
// auth/token-ttl is unset
const DefaultTokenTTL = 24 * time.Hour

// DefaultRebuildLimit is the number of admin rebuilds or cache clears a
// caller may issue per window when server/rebuild-limit is unset
const DefaultRebuildLimit = 10

// openDB opens the content database; tests replace it
var openDB = sql.Open

// app is the wired object graph shared by the commands
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	defs   *config.FileDefinitions
	svc    *service.Service
	router *router.Router
	tokens *auth.TokenService
	events *events.Hub
	// redis is the cache backend's client, nil with the memory backend
	redis *redis.Client

	closers []func() error
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig loads the extension configuration named by the flags
func loadConfig(opts *globalOptions, logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// menuPath resolves the menu file: the flag wins, then menu-file relative
// to the directory of the config file
func menuPath(cfg *config.Config, flag string) string {
	if flag != "" {
		return flag
	}
	if filepath.IsAbs(cfg.MenuFile) || cfg.File == "" {
		return cfg.MenuFile
	}
	return filepath.Join(filepath.Dir(cfg.File), cfg.MenuFile)
}

func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := loadConfig(opts, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	db, err := openDB(cfg.Content.Driver, cfg.Content.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open content database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	store := content.NewSQLStore(db, cfg.Content.Driver,
		content.WithTable(cfg.Content.Table),
		content.WithCatalog(cfg.ContentTypes),
	)

	routeCache, err := a.routeCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.defs = config.NewFileDefinitions(cfg.File, menuPath(cfg, opts.menuPath), logger)
	a.router = router.NewRouter()

	reader := cfg.Reader()
	a.events = events.NewHub(ctx, events.DefaultConfig(), logger)
	a.events.Start()
	a.closers = append(a.closers, func() error {
		a.events.Shutdown()
		return nil
	})

	a.svc = service.New(service.Deps{
		Lookup:      store,
		Catalog:     cfg.ContentTypes,
		Definitions: a.defs,
		Sources:     a.defs,
		Cache:       routeCache,
		URLs:        a.router,
		Observer:    a.events,
	}, service.Config{
		Builder: cfg.BuilderOptions(),
		Links:   cfg.LinkOptions(),
		Resolver: resolver.Options{
			UsePatterns: reader.Bool("settings/use-patterns", false),
		},
		CacheEnabled: cfg.Cache.Enabled,
	}, logger)

	if cfg.Auth.Secret != "" {
		ttl := reader.Duration("auth/token-ttl", DefaultTokenTTL)
		a.tokens = auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.Issuer, ttl)
	}

	a.router.Use(
		middleware.RequestID(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    logger,
			SkipPaths: []string{MetricsPath},
		}),
		middleware.Recovery(logger),
		middleware.BuildOnRequest(a.svc, logger),
	)
	a.router.Handle(http.MethodGet, MetricsPath, promhttp.Handler())

	handlers := router.NewHandlers(a.svc, cfg.ContentTypes, nil, logger).
		ShowDetails(opts.verbose).
		Events(a.events)
	limiter, err := a.rebuildLimiter()
	if err != nil {
		a.Close()
		return nil, err
	}
	if limiter != nil {
		handlers.RateLimit(limiter)
	}
	if len(cfg.Auth.Users) > 0 {
		users := make(auth.Users, len(cfg.Auth.Users))
		for name, u := range cfg.Auth.Users {
			users[name] = auth.User{PasswordHash: u.PasswordHash, Roles: u.Roles}
		}
		handlers.Users(users)
	}
	if reader.Bool("server/pprof", false) {
		handlers.Profiling(profiling.Config{
			BlockRate:     reader.Int("server/pprof-block-rate", 0),
			MutexFraction: reader.Int("server/pprof-mutex-fraction", 0),
		})
	}
	handlers.Register(a.router, a.tokens)

	return a, nil
}

// rebuildLimiter throttles admin rebuilds per caller. It is shared through
// redis when the cache lives there; 0 disables it.
func (a *app) rebuildLimiter() (ratelimit.Limiter, error) {
	reader := a.cfg.Reader()
	limit := reader.Int("server/rebuild-limit", DefaultRebuildLimit)
	window := reader.Duration("server/rebuild-window", time.Minute)
	if limit <= 0 {
		return nil, nil
	}

	if a.redis != nil {
		return ratelimit.NewRedisLimiter(ratelimit.RedisLimiterConfig{
			Client: a.redis,
			Limit:  limit,
			Window: window,
			Prefix: a.cfg.Cache.Prefix + "ratelimit:",
		})
	}
	tb := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
		Capacity:        limit,
		Window:          window,
		CleanupInterval: 5 * window,
	})
	a.closers = append(a.closers, tb.Close)
	return tb, nil
}

// routeCache returns nil when caching is disabled
func (a *app) routeCache(ctx context.Context) (*cache.RouteCache, error) {
	c := a.cfg.Cache
	if !c.Enabled {
		return nil, nil
	}

	storeConfig := cache.Config{DefaultTTL: c.TTL(), Prefix: c.Prefix}
	var store cache.Store
	switch c.Backend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Config:   storeConfig,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.Redis.Addr, err)
		}
		a.closers = append(a.closers, rs.Close)
		a.redis = rs.Client()
		store = rs
	default:
		store = cache.NewMemoryStoreWithConfig(storeConfig)
	}
	return cache.NewRouteCache(store, c.TTL(), a.logger), nil
}

// Close releases everything newApp opened, last opened first
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp wires the app for one command invocation
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
