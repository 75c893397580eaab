// Package main provides the entrypoint for the air13x worker. It runs the
// ranking probe and provider health check on Pub/Sub messages, or on a
// timer when no subscription is configured.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/air13x/air13x/internal/app"
	"github.com/air13x/air13x/internal/config"
	"github.com/air13x/air13x/internal/provider/resilience"
	"github.com/air13x/air13x/internal/ranking"
	"github.com/air13x/air13x/internal/telemetry"
	"github.com/air13x/air13x/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName        = "air13x-worker"
	localProbeInterval = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("worker exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := cfg.NewLogger(serviceName, Version)
	log.Info().Str("build_time", BuildTime).Msg("starting air13x worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return err
	}

	registry := resilience.NewRegistry()
	providers := app.NewProviders(cfg, registry, providerMetrics, log)

	jobs := worker.NewJobs(worker.JobsConfig{
		Config: worker.JobConfig{Targets: cfg.RankingTargets},
		Pool: ranking.NewPool(ranking.Config{
			Feeder:  providers.WAQI,
			Workers: cfg.RankingWorkers,
			Logger:  log,
		}),
		Health: registry,
		Logger: log,
	})

	// Cloud Run needs a listening port; it doubles as a stats endpoint.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"jobs":    jobs.Stats(),
		})
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if cfg.GCPProjectID != "" && cfg.PubSubSubscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.GCPProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Jobs:             jobs,
			Logger:           log,
		})
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()

		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub receive stopped")
		}
	} else {
		log.Warn().
			Dur("interval", localProbeInterval).
			Msg("no pubsub subscription configured, running jobs on a timer")
		runOnTimer(ctx, jobs, log)
	}

	log.Info().Msg("shutting down worker")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
	return nil
}

// runOnTimer runs a health check and a ranking probe immediately and then
// every localProbeInterval until ctx is done.
func runOnTimer(ctx context.Context, jobs *worker.Jobs, log zerolog.Logger) {
	ticker := time.NewTicker(localProbeInterval)
	defer ticker.Stop()

	for {
		for _, job := range []string{worker.JobHealthCheck, worker.JobRankingProbe} {
			start := time.Now()
			msg, _ := json.Marshal(worker.Message{JobType: job})
			worker.Settle(jobs.Dispatch(ctx, msg), log.With().Str("job_type", job).Logger(), time.Since(start))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
