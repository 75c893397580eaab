// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort           = "8080"
	DefaultEnv            = "local"
	DefaultOTLPEndpoint   = "localhost:4317"
	DefaultSessionTTL     = 30 * time.Minute
	DefaultRankingWorkers = 5
	DefaultCountriesTTL   = 24 * time.Hour
	DefaultStatesTTL      = time.Hour
	DefaultCitiesTTL      = time.Hour
)

// Config holds the settings shared by the API and the worker.
type Config struct {
	Port     string
	Env      string
	LogLevel zerolog.Level

	OTelEnabled  bool
	OTLPEndpoint string

	// Operator credentials, used for any key a fetch request leaves empty.
	IQAirAPIKey       string
	OpenWeatherAPIKey string
	WAQIToken         string
	MapboxToken       string

	SessionTTL time.Duration

	RankingTargets []string
	RankingWorkers int

	CountriesTTL time.Duration
	StatesTTL    time.Duration
	CitiesTTL    time.Duration

	// RateLimits caps outbound requests per second by provider name.
	RateLimits map[string]float64

	// Worker only.
	GCPProjectID       string
	PubSubSubscription string
}

// IsLocal reports whether the service runs on a developer machine.
func (c *Config) IsLocal() bool {
	return c.Env == DefaultEnv
}

type fileConfig struct {
	Ranking struct {
		Targets []string `yaml:"targets"`
		Workers int      `yaml:"workers"`
	} `yaml:"ranking"`

	Cache struct {
		CountriesTTL string `yaml:"countries_ttl"`
		StatesTTL    string `yaml:"states_ttl"`
		CitiesTTL    string `yaml:"cities_ttl"`
	} `yaml:"cache"`

	Sessions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"sessions"`

	Providers map[string]struct {
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	} `yaml:"providers"`
}

// Load reads .env (when present), then the YAML file named by CONFIG_FILE
// (when set), then the environment. Environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg := &Config{
		Port:               getenvDefault("APP_PORT", DefaultPort),
		Env:                getenvDefault("APP_ENV", DefaultEnv),
		OTelEnabled:        os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:       getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		IQAirAPIKey:        strings.TrimSpace(os.Getenv("IQAIR_API_KEY")),
		OpenWeatherAPIKey:  strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")),
		WAQIToken:          strings.TrimSpace(os.Getenv("WAQI_TOKEN")),
		MapboxToken:        strings.TrimSpace(os.Getenv("MAPBOX_TOKEN")),
		RankingTargets:     fc.Ranking.Targets,
		GCPProjectID:       os.Getenv("GCP_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		RateLimits:         make(map[string]float64, len(fc.Providers)),
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getenvDefault("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.SessionTTL, err = durationSetting("SESSION_TTL", fc.Sessions.TTL, DefaultSessionTTL); err != nil {
		return nil, err
	}
	if cfg.CountriesTTL, err = durationSetting("", fc.Cache.CountriesTTL, DefaultCountriesTTL); err != nil {
		return nil, err
	}
	if cfg.StatesTTL, err = durationSetting("", fc.Cache.StatesTTL, DefaultStatesTTL); err != nil {
		return nil, err
	}
	if cfg.CitiesTTL, err = durationSetting("", fc.Cache.CitiesTTL, DefaultCitiesTTL); err != nil {
		return nil, err
	}

	cfg.RankingWorkers = DefaultRankingWorkers
	if fc.Ranking.Workers > 0 {
		cfg.RankingWorkers = fc.Ranking.Workers
	}
	if v := os.Getenv("RANKING_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RANKING_WORKERS %q", v)
		}
		cfg.RankingWorkers = n
	}

	for name, p := range fc.Providers {
		if p.RateLimitPerSecond > 0 {
			cfg.RateLimits[strings.ToLower(name)] = p.RateLimitPerSecond
		}
	}

	return cfg, nil
}

// durationSetting resolves a duration from env (when key is set), then the
// file value, then def.
func durationSetting(key, fileValue string, def time.Duration) (time.Duration, error) {
	raw := fileValue
	name := "config file duration"
	if key != "" {
		name = key
		if v := os.Getenv(key); v != "" {
			raw = v
		}
	}
	if raw == "" {
		return def, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
