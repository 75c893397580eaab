// Package api provides the HTTP API of air13x.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/air13x/air13x/internal/api/handler"
	"github.com/air13x/air13x/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	// Health reports provider circuit state for the ops endpoints.
	Health handler.HealthSource

	Locations handler.LocationDirectory
	Sessions  SessionService
	Fetcher   handler.FetchStarter
}

// SessionService is the session store as the API uses it.
type SessionService interface {
	handler.SessionStore
	handler.SessionCounter
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "air13x-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	var counter handler.SessionCounter
	if cfg.Sessions != nil {
		counter = cfg.Sessions
	}
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Health, counter)
	locationHandler := handler.NewLocationHandler(cfg.Locations)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Fetcher, cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)    // 100 req/min per IP
	fetchRateLimit := middleware.RateLimitBySession(middleware.ExpensiveRateLimit) // 10 req/min per session

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/locations/countries", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", locationHandler.ListCountries)
			r.Get("/{country}/states", locationHandler.ListStates)
			r.Get("/{country}/states/{state}/cities", locationHandler.ListCities)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(standardRateLimit, middleware.RequireJSON).Post("/", sessionHandler.CreateSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", sessionHandler.GetSession)
				r.With(standardRateLimit).Delete("/", sessionHandler.DeleteSession)
				r.With(standardRateLimit).Get("/dashboard", sessionHandler.GetDashboard)
				r.With(fetchRateLimit, middleware.RequireJSON).Post("/fetch", sessionHandler.Fetch)
			})
		})
	})

	return r
}
