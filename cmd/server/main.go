// Package main provides the entrypoint for the RoadPulse server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/api"
	"github.com/breatheroute/roadpulse/internal/api/middleware"
	"github.com/breatheroute/roadpulse/internal/config"
	"github.com/breatheroute/roadpulse/internal/database"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/dataservice/backend"
	"github.com/breatheroute/roadpulse/internal/dataservice/cache"
	"github.com/breatheroute/roadpulse/internal/dataservice/postgis"
	"github.com/breatheroute/roadpulse/internal/observability"
	"github.com/breatheroute/roadpulse/internal/provider/resilience"
	"github.com/breatheroute/roadpulse/internal/telemetry"
	"github.com/breatheroute/roadpulse/internal/viewport"
	"github.com/breatheroute/roadpulse/internal/visualizer"
	"github.com/breatheroute/roadpulse/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "roadpulse"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Str("data_source", cfg.DataSource).
		Str("timezone", cfg.Location.String()).
		Msg("starting RoadPulse")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.OTelEnabled {
		log.Info().Str("otlp_endpoint", cfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	pipelineMetrics := observability.NewMetrics(nil)
	registry := resilience.NewRegistry()

	source, closeSource, err := newSource(ctx, cfg, registry, log)
	if err != nil {
		return err
	}
	defer closeSource()

	roadCache := cache.New(source, cache.Config{Size: cfg.RoadCacheSize, TTL: cfg.RoadCacheTTL})
	session := visualizer.New(visualizer.Config{
		Source:   roadCache,
		Viewport: viewport.Default(cfg.ViewportWidth, cfg.ViewportHeight),
		Location: cfg.Location,
		Clock:    clockwork.NewRealClock(),
		Logger:   log,
		Metrics:  pipelineMetrics,
	})
	defer session.Close()

	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, cfg.DataServiceTimeout*2)
		if _, err := session.Refresh(loadCtx); err != nil {
			log.Warn().Err(err).Msg("initial load failed, waiting for the next interaction")
		}
		cancel()

		if !cfg.CacheWarmEnabled {
			return
		}
		warmCfg := worker.DefaultWarmConfig(cfg.ViewportWidth, cfg.ViewportHeight)
		warmCfg.Concurrency = cfg.CacheWarmConcurrency
		warmCfg.Timeout = cfg.DataServiceTimeout * 2
		worker.NewWarmJob(worker.WarmJobConfig{
			Config:  warmCfg,
			Source:  roadCache,
			Logger:  log.With().Str("job", "cache_warm").Logger(),
			Metrics: pipelineMetrics,
		}).Run(ctx)
	}()

	router := api.NewRouter(api.RouterConfig{
		Version:    Version,
		BuildTime:  BuildTime,
		Logger:     log,
		Metrics:    httpMetrics,
		Session:    session,
		Registry:   registry,
		RequireTLS: cfg.RequireTLS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DataServiceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newSource builds the configured data source. The returned func releases it.
func newSource(ctx context.Context, cfg config.Config, registry *resilience.Registry, log zerolog.Logger) (dataservice.Source, func(), error) {
	switch cfg.DataSource {
	case config.SourcePostGIS:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
		return postgis.NewSource(pool), pool.Close, nil

	default:
		log.Info().Str("url", cfg.DataServiceURL).Msg("using data service")
		return backend.NewClient(backend.ClientConfig{
			BaseURL:  cfg.DataServiceURL,
			Timeout:  cfg.DataServiceTimeout,
			Registry: registry,
			Logger:   log,
		}), func() {}, nil
	}
}
