package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/appid"
	"github.com/lingualens/lingualens/internal/auth"
	"github.com/lingualens/lingualens/internal/config"
	"github.com/lingualens/lingualens/internal/core/engine"
	errwrap "github.com/lingualens/lingualens/internal/errors"
	"github.com/lingualens/lingualens/internal/metrics"
	"github.com/lingualens/lingualens/internal/observability"
	"github.com/lingualens/lingualens/internal/server"
	"github.com/lingualens/lingualens/internal/server/handlers"
)

const cacheSweepInterval = time.Minute

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP host",
	Long: `Start the local HTTP host that fronts the NLP API for browser
extensions and other local clients.

All /v1 calls share one set of rate limiters and one response cache.
Set server.auth_secret to require bearer tokens (see the token command).

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (limits and cache settings need a restart)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		identity := appid.Get()
		namespace := identity.TelemetryNamespace
		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now().Unix())
		}

		quota := metrics.NewQuotaMetrics(namespace)
		a, err := newApp(cmd.Context(), cfg, logger, quota)
		if err != nil {
			return err
		}

		var signer *auth.Signer
		if cfg.Server.AuthSecret != "" {
			signer, err = auth.NewSigner(cfg.Server.AuthSecret, cfg.Server.TokenTTL)
			if err != nil {
				_ = a.Close()
				return &configError{err: err}
			}
		}

		health := newHealthManager(a, cfg)
		srv := server.New(server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			API: &handlers.API{
				Gateway:    a.gateway,
				Registry:   a.registry,
				Cache:      a.cache,
				Stats:      a.stats,
				Superseder: engine.NewSuperseder(),
			},
			Health:          health,
			Quota:           quota,
			Signer:          signer,
			MetricsDisabled: !cfg.Metrics.Enabled,
		})

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.String("api", cfg.API.BaseURL),
			zap.String("cache_backend", cfg.Cache.Backend),
			zap.Any("policies", a.registry.Snapshot()),
			zap.Bool("auth", signer != nil),
			zap.String("addr", srv.Addr()))

		sweepCtx, stopSweep := context.WithCancel(context.Background())
		go sweepCache(sweepCtx, a.cache, cacheSweepInterval)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: the HTTP server stops first, the logger flushes last.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			stopSweep()
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Failed to stop metrics exporter", zap.Error(err))
			}
			return a.Close()
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading configuration")
			next, err := config.Load(ctx)
			if err != nil {
				logger.Error("Failed to reload config", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			observability.InitServerLogger(identity.BinaryName, next.Logging.Level, namespace)
			logger = observability.ServerLogger
			if restartRequired(cfg, next) {
				logger.Warn("Rate limit, cache or API settings changed; restart to apply them")
			}
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...", zap.String("addr", srv.Addr()))
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			stopSweep()
			_ = a.Close()
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
}

func newHealthManager(a *app, cfg *config.Config) *handlers.HealthManager {
	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterChecker("store", handlers.CheckerFunc(a.db.Ping))
	if a.redis != nil {
		hm.RegisterOptionalChecker("redis", handlers.CheckerFunc(a.redis.Ping))
	}
	hm.RegisterOptionalChecker("upstream", handlers.CheckerFunc(func(ctx context.Context) error {
		_, err := a.client.Health(ctx)
		return err
	}))
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.CheckerFunc(func(context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errwrap.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
	}
	return hm
}

func sweepCache(ctx context.Context, cache *engine.ResponseCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordCacheSweep(cache.CleanExpired(ctx))
		}
	}
}

func restartRequired(current, next *config.Config) bool {
	if current.API != next.API || current.Cache != next.Cache || current.Redis != next.Redis {
		return true
	}
	if current.RateLimitMargin != next.RateLimitMargin || len(current.RateLimits) != len(next.RateLimits) {
		return true
	}
	for name, value := range current.RateLimits {
		if next.RateLimits[name] != value {
			return true
		}
	}
	return false
}
