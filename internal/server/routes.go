package server

import (
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/appid"
	"github.com/lingualens/lingualens/internal/observability"
	"github.com/lingualens/lingualens/internal/server/handlers"
	servermw "github.com/lingualens/lingualens/internal/server/middleware"
)

func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.NewVersionHandler(s.opts.API, s.opts.Signer != nil))

	if !s.opts.MetricsDisabled {
		s.router.Get("/metrics", MetricsHandler)
	}
	if s.opts.Quota != nil {
		s.router.Method("GET", "/metrics/quota", s.opts.Quota.Handler())
	}

	if api := s.opts.API; api != nil {
		s.router.Route("/v1", func(r chi.Router) {
			if s.opts.Signer != nil {
				r.Use(servermw.BearerAuth(s.opts.Signer))
			}
			r.Post("/analyze", api.Analyze)
			r.Post("/translate", api.Translate)

			r.Get("/rate-limits", api.RateLimits)
			r.Delete("/rate-limits", api.ResetRateLimits)
			r.Get("/rate-limits/{policy}", api.PolicyRateLimits)
			r.Delete("/rate-limits/{policy}", api.ResetRateLimits)

			r.Post("/cache/clean", api.CleanCache)

			r.Get("/stats", api.GetStats)
			r.Delete("/stats", api.ResetStats)
		})
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint enables POST /admin/signal when <PREFIX>ADMIN_TOKEN is set.
func (s *Server) registerAdminEndpoint() {
	envVar := appid.EnvPrefix() + "ADMIN_TOKEN"
	adminToken := os.Getenv(envVar)
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envVar + " set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
