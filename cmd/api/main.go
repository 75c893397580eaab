// Package main provides the entrypoint for the air13x API server.
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

	"github.com/air13x/air13x/internal/api"
	"github.com/air13x/air13x/internal/api/middleware"
	"github.com/air13x/air13x/internal/app"
	"github.com/air13x/air13x/internal/config"
	"github.com/air13x/air13x/internal/dashboard"
	"github.com/air13x/air13x/internal/location"
	"github.com/air13x/air13x/internal/provider/resilience"
	"github.com/air13x/air13x/internal/ranking"
	"github.com/air13x/air13x/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "air13x-api"

func main() {
	if err := run(); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("api exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := cfg.NewLogger(serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting air13x API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
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
	if tp.Enabled() {
		log.Info().Str("otlp_endpoint", cfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return err
	}
	dashboardMetrics, err := telemetry.NewDashboardMetrics()
	if err != nil {
		return err
	}

	registry := resilience.NewRegistry()
	providers := app.NewProviders(cfg, registry, providerMetrics, log)
	log.Info().
		Strs("providers", registry.GetProviderNames()).
		Msg("provider clients initialized")

	locations := location.NewService(location.ServiceConfig{
		Directory: func(key string) location.Directory {
			if key == "" {
				return providers.IQAir
			}
			return providers.IQAir.WithAPIKey(key)
		},
		Logger:       log,
		CountriesTTL: cfg.CountriesTTL,
		StatesTTL:    cfg.StatesTTL,
		CitiesTTL:    cfg.CitiesTTL,
		Metrics:      providerMetrics,
	})

	pool := ranking.NewPool(ranking.Config{
		Feeder:  providers.WAQI,
		Workers: cfg.RankingWorkers,
		Logger:  log,
	})

	aggregator := dashboard.NewAggregator(dashboard.AggregatorConfig{
		IQAir:       providers.IQAir,
		OpenWeather: providers.OpenWeather,
		WAQI:        providers.WAQI,
		Ranking:     pool,
		Targets:     cfg.RankingTargets,
		Credentials: dashboard.Credentials{
			IQAir:       cfg.IQAirAPIKey,
			OpenWeather: cfg.OpenWeatherAPIKey,
			WAQI:        cfg.WAQIToken,
			Mapbox:      cfg.MapboxToken,
		},
		Metrics: dashboardMetrics,
		Logger:  log,
	})

	store := dashboard.NewStore(dashboard.StoreConfig{
		TTL:    cfg.SessionTTL,
		Logger: log,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go store.RunJanitor(janitorCtx, time.Minute)

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		RequireTLS:  !cfg.IsLocal(),
		Health:      registry,
		Locations:   locations,
		Sessions:    store,
		Fetcher:     aggregator,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stopJanitor()
	aggregator.Wait()

	log.Info().Msg("server stopped")
	return nil
}
