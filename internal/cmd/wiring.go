package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/core"
	"github.com/lingualens/lingualens/internal/core/cache"
	"github.com/lingualens/lingualens/internal/core/client"
	"github.com/lingualens/lingualens/internal/core/engine"
	"github.com/lingualens/lingualens/internal/core/store"
	"github.com/lingualens/lingualens/internal/observability"
)

// app holds everything a command needs to call the API through the gateway.
type app struct {
	cfg      *config.Config
	db       *store.Store
	redis    *cache.RedisBackend
	cache    *engine.ResponseCache
	registry *engine.Registry
	client   *client.Client
	stats    *store.Stats
	settings store.Settings
	gateway  *engine.Gateway
	logger   *logging.Logger
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.HistoryLimit = cfg.Stats.HistoryLimit
	return db, nil
}

func buildRegistry(cfg *config.Config) (*engine.Registry, error) {
	policies := engine.ApplyOverrides(engine.DefaultPolicies, cfg.RateLimits)
	policies = engine.ApplySafetyMargin(policies, cfg.RateLimitMargin)
	return engine.NewRegistry(policies, nil)
}

func buildCacheBackend(cfg *config.Config, db *store.Store) (engine.CacheBackend, *cache.RedisBackend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Backend)) {
	case "memory":
		return engine.NewMemoryBackend(), nil, nil
	case "redis":
		backend, err := cache.NewRedisBackend(cfg.Redis.URL, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	case "", "store":
		if db == nil {
			return nil, nil, errors.New("cache backend store requires an open store")
		}
		return db, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

// userSettings layers stored preferences over defaults taken from config.
func userSettings(cfg *config.Config, kv store.KV) store.Settings {
	base := core.DefaultSettings()
	if cfg.Stats.ToxicityThreshold > 0 {
		base.ToxicityThreshold = cfg.Stats.ToxicityThreshold
	}
	return store.Settings{KV: kv, Base: &base}
}

// newApp opens the store and builds the gateway stack. observer may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, observer engine.QuotaObserver) (*app, error) {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, logger: logger}

	backend, redisBackend, err := buildCacheBackend(cfg, db)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.redis = redisBackend
	a.cache = engine.NewResponseCache(backend, cfg.Cache.TTL, nil, logger)

	a.registry, err = buildRegistry(cfg)
	if err != nil {
		_ = a.Close()
		return nil, &configError{err: err}
	}

	a.client = client.New(cfg.API.BaseURL, cfg.API.Timeout)
	a.client.UserAgent = cfg.API.UserAgent

	a.settings = userSettings(cfg, db)
	prefs, err := a.settings.Load(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.stats = store.NewStats(db)
	a.gateway = &engine.Gateway{
		Registry:          a.registry,
		Cache:             a.cache,
		Client:            a.client,
		Observer:          observer,
		Logger:            logger,
		ToxicityThreshold: prefs.ToxicityThreshold,
		Threshold:         a.currentThreshold,
	}
	if cfg.Stats.Enabled {
		a.gateway.Stats = a.stats
		a.gateway.History = db
	}

	if cfg.Cache.CleanOnStart {
		if removed := a.cache.CleanExpired(ctx); removed > 0 && logger != nil {
			logger.Debug("Removed expired cache entries", zap.Int("removed", removed))
		}
	}
	return a, nil
}

// Close releases the store and any redis connection.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// currentThreshold reads the toxicity threshold from the settings store so a
// running server picks up `settings set toxicity_threshold`.
func (a *app) currentThreshold(ctx context.Context) (float64, error) {
	prefs, err := a.settings.Load(ctx)
	if err != nil {
		return 0, err
	}
	return prefs.ToxicityThreshold, nil
}

// preferences returns stored settings, falling back to defaults on error.
func (a *app) preferences(ctx context.Context) core.Settings {
	prefs, err := a.settings.Load(ctx)
	if err != nil && a.logger != nil {
		a.logger.Warn("Failed to load settings, using defaults", zap.Error(err))
	}
	return prefs
}

// withApp loads config, builds the app and closes it after fn.
func withApp(ctx context.Context, cfg *config.Config, fn func(*app) error) error {
	a, err := newApp(ctx, cfg, observability.Logger(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}
