// Package api provides the HTTP API for RoadPulse.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/api/handler"
	"github.com/breatheroute/roadpulse/internal/api/middleware"
	"github.com/breatheroute/roadpulse/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version    string
	BuildTime  string
	Logger     zerolog.Logger
	Metrics    *middleware.Metrics
	Session    handler.Session
	Registry   *resilience.Registry
	RequireTLS bool

	// Gatherer serves GET /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Session:   cfg.Session,
		Registry:  cfg.Registry,
	})
	viewHandler := handler.NewViewHandler(cfg.Session, cfg.Logger)

	readLimit := middleware.RateLimitByIP(middleware.ReadRateLimit)
	writeLimit := middleware.RateLimitByIP(middleware.WriteRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(readLimit)
			r.Get("/view", viewHandler.GetView)
			r.Get("/legend", viewHandler.Legend)
		})

		r.Group(func(r chi.Router) {
			r.Use(writeLimit)
			r.Use(middleware.RequireJSON)
			r.Post("/view/refresh", viewHandler.Refresh)
			r.Put("/viewport", viewHandler.SetViewport)
			r.Put("/time", viewHandler.SetTime)
			r.Post("/playback/play", viewHandler.Play)
			r.Post("/playback/stop", viewHandler.Stop)
		})
	})

	return r
}
