// Package main provides the entrypoint for the FleetRoute API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetroute/fleetroute/internal/api"
	"github.com/fleetroute/fleetroute/internal/api/middleware"
	"github.com/fleetroute/fleetroute/internal/config"
	"github.com/fleetroute/fleetroute/internal/enrich"
	"github.com/fleetroute/fleetroute/internal/matrix"
	"github.com/fleetroute/fleetroute/internal/planner"
	"github.com/fleetroute/fleetroute/internal/provider/resilience"
	"github.com/fleetroute/fleetroute/internal/routing"
	"github.com/fleetroute/fleetroute/internal/routing/openrouteservice"
	"github.com/fleetroute/fleetroute/internal/solver"
	"github.com/fleetroute/fleetroute/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "fleetroute-api"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Server.Environment).
		Msg("starting FleetRoute API")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:       serviceName,
		ServiceVersion:    Version,
		Environment:       cfg.Server.Environment,
		OTLPEndpoint:      cfg.Telemetry.OTLPEndpoint,
		Enabled:           cfg.Telemetry.Enabled,
		PrometheusEnabled: cfg.Telemetry.PrometheusEnabled,
		SampleRatio:       cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if tp.Tracing() {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return err
	}
	optimizerMetrics, err := telemetry.NewOptimizerMetrics()
	if err != nil {
		return err
	}

	profile := routing.RouteProfile(cfg.ORS.Profile)
	registry := resilience.NewRegistry()

	// Without an API key both sources stay nil and every request runs on
	// the straight-line fallback.
	var (
		matrixSource     routing.MatrixSource
		directionsSource routing.DirectionsSource
	)
	if cfg.ORS.APIKey != "" {
		ors := openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:            cfg.ORS.APIKey,
			BaseURL:           cfg.ORS.BaseURL,
			Profile:           profile,
			MatrixTimeout:     cfg.ORS.MatrixTimeout,
			DirectionsTimeout: cfg.ORS.DirectionsTimeout,
			RequestsPerMinute: cfg.ORS.RequestsPerMinute,
			Registry:          registry,
			Metrics:           providerMetrics,
			Logger:            log.With().Str("component", "openrouteservice").Logger(),
		})
		matrixSource, directionsSource = ors, ors
		log.Info().Str("profile", string(profile)).Msg("OpenRouteService client initialized")
	} else {
		log.Warn().Msg("ORS_API_KEY not set - distances are straight-line estimates and routes have no geometry")
	}

	matrixProvider := matrix.NewProvider(matrix.Config{
		Source:        matrixSource,
		Profile:       profile,
		FallbackSpeed: cfg.Optimizer.FallbackSpeed,
		Metrics:       providerMetrics,
		Logger:        log.With().Str("component", "matrix").Logger(),
	})
	enricher := enrich.NewEnricher(enrich.Config{
		Source:      directionsSource,
		Profile:     profile,
		Concurrency: cfg.Optimizer.EnrichConcurrency,
		Metrics:     providerMetrics,
		Logger:      log.With().Str("component", "enrich").Logger(),
	})

	planService := planner.NewService(planner.Config{
		Matrix:          matrixProvider,
		Enricher:        enricher,
		DefaultCapacity: cfg.Optimizer.DefaultCapacity,
		MaxCustomers:    cfg.Optimizer.MaxCustomers,
		SolverOptions: solver.Options{
			MaxIterations: cfg.Optimizer.MaxIterations,
			TimeBudget:    cfg.Optimizer.TimeBudget,
		},
		Metrics: optimizerMetrics,
		Logger:  log.With().Str("component", "planner").Logger(),
	})

	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		Metrics:           httpMetrics,
		Planner:           planService,
		Registry:          registry,
		CORSAllowedOrigin: cfg.Server.CORSAllowedOrigin,
		RequireTLS:        cfg.Server.RequireTLS,
		MetricsHandler:    tp.MetricsHandler,
		PlanningRateLimit: middleware.PerMinute(middleware.PlanningRateLimit, cfg.Server.PlanningRateLimit),
		InsightsRateLimit: middleware.PerMinute(middleware.InsightsRateLimit, cfg.Server.InsightsRateLimit),
	})

	// The write timeout covers a full matrix call, the solver budget and
	// the directions calls.
	writeTimeout := cfg.ORS.MatrixTimeout + cfg.Optimizer.TimeBudget + cfg.ORS.DirectionsTimeout + 10*time.Second

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
