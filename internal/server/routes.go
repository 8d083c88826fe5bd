package server

import (
	"context"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/refreshrelay/refreshrelay/internal/appid"
	"github.com/refreshrelay/refreshrelay/internal/observability"
	"github.com/refreshrelay/refreshrelay/internal/server/handlers"
)

// registerRoutes registers all HTTP routes. Fixed routes win over the relay
// catch-all, so a target can never shadow them.
func (s *Server) registerRoutes() {
	if s.cfg.Health.Enabled {
		s.router.Get("/health", handlers.HealthHandler)
		s.router.Get("/health/live", handlers.LivenessHandler)
		s.router.Get("/health/ready", handlers.ReadinessHandler)
		s.router.Get("/health/startup", handlers.StartupHandler)
	}

	s.router.Get("/version", handlers.VersionHandler)

	if s.cfg.Metrics.Enabled {
		s.router.Get("/metrics", MetricsHandler)
	}

	if s.cfg.Debug.PprofEnabled {
		s.router.Mount("/debug", middleware.Profiler())
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("pprof endpoints enabled under /debug/pprof")
		}
	}

	s.registerAdminEndpoint()

	s.router.Get("/", s.relay.Help)
	s.router.Get("/robots.txt", s.relay.Robots)
	s.router.Get("/favicon.ico", s.relay.Favicon)
	s.router.Get("/*", s.relay.ServeHTTP)
}

// registerAdminEndpoint exposes POST /admin/signal when <PREFIX>ADMIN_TOKEN is set.
func (s *Server) registerAdminEndpoint() {
	envPrefix := appid.EnvPrefix(context.Background(), "REFRESHRELAY_")
	adminToken := os.Getenv(envPrefix + "ADMIN_TOKEN")
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + envPrefix + "ADMIN_TOKEN set)")
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
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
