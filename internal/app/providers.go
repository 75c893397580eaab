// Package app builds the provider clients shared by the API and the worker.
package app

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/air13x/air13x/internal/airquality/iqair"
	"github.com/air13x/air13x/internal/airquality/waqi"
	"github.com/air13x/air13x/internal/config"
	"github.com/air13x/air13x/internal/provider/resilience"
	"github.com/air13x/air13x/internal/weather/openweathermap"
)

// Providers are the upstream clients, authenticated with the operator keys.
type Providers struct {
	IQAir       *iqair.Client
	OpenWeather *openweathermap.Client
	WAQI        *waqi.Client
}

// NewProviders creates one resilient transport per provider, registered in
// registry and reporting to metrics. metrics may be nil.
func NewProviders(cfg *config.Config, registry *resilience.Registry, metrics resilience.RequestRecorder, logger zerolog.Logger) Providers {
	transport := func(name string, timeout time.Duration) *resilience.Client {
		cb := resilience.DefaultCircuitBreakerConfig(name)
		cb.OnStateChange = resilience.LogStateChanges(logger)

		clientCfg := resilience.DefaultClientConfig(name)
		clientCfg.Timeout = timeout
		clientCfg.MaxRetries = 2
		clientCfg.InitialInterval = 200 * time.Millisecond
		clientCfg.MaxInterval = 2 * time.Second
		clientCfg.CircuitBreaker = &cb
		clientCfg.Registry = registry
		clientCfg.Metrics = metrics
		if limit, ok := cfg.RateLimits[name]; ok {
			clientCfg.RateLimit = rate.Limit(limit)
			clientCfg.Burst = max(1, int(limit))
		}
		return resilience.NewClient(clientCfg)
	}

	return Providers{
		IQAir: iqair.NewClient(iqair.ClientConfig{
			APIKey:     cfg.IQAirAPIKey,
			HTTPClient: transport(iqair.ProviderName, iqair.DefaultTimeout),
		}),
		OpenWeather: openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:     cfg.OpenWeatherAPIKey,
			HTTPClient: transport(openweathermap.ProviderName, openweathermap.HistoryTimeout),
			Logger:     logger,
		}),
		WAQI: waqi.NewClient(waqi.ClientConfig{
			Token:      cfg.WAQIToken,
			HTTPClient: transport(waqi.ProviderName, waqi.MapTimeout),
		}),
	}
}
