// Package location serves the country/state/city directory used to pick a
// dashboard location, memoizing provider answers for a configurable time.
package location

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default cache durations. Country lists change rarely; state and city lists
// are refreshed more often.
const (
	DefaultCountriesTTL = 24 * time.Hour
	DefaultStatesTTL    = time.Hour
	DefaultCitiesTTL    = time.Hour
)

const providerName = "iqair"

// Directory lists locations known to a provider.
type Directory interface {
	Countries(ctx context.Context) ([]string, error)
	States(ctx context.Context, country string) ([]string, error)
	Cities(ctx context.Context, country, state string) ([]string, error)
}

// DirectoryFactory returns a Directory that authenticates with key.
// An empty key selects the operator-configured credential.
type DirectoryFactory func(key string) Directory

// CacheRecorder records cache lookups.
type CacheRecorder interface {
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// ServiceConfig holds configuration for the location service.
type ServiceConfig struct {
	// Directory builds the provider client for a key.
	Directory DirectoryFactory

	// Logger for service operations.
	Logger zerolog.Logger

	// CountriesTTL is how long a country list is reused (default: 24 hours).
	CountriesTTL time.Duration

	// StatesTTL is how long a state list is reused (default: 1 hour).
	StatesTTL time.Duration

	// CitiesTTL is how long a city list is reused (default: 1 hour).
	CitiesTTL time.Duration

	// Metrics, when set, records hits and misses.
	Metrics CacheRecorder

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service provides directory listings with caching. Errors are never cached.
type Service struct {
	directory    DirectoryFactory
	logger       zerolog.Logger
	countriesTTL time.Duration
	statesTTL    time.Duration
	citiesTTL    time.Duration
	metrics      CacheRecorder
	now          func() time.Time

	mu              sync.RWMutex
	entries         map[string]cachedList
	lastCleanup     time.Time
	cleanupInterval time.Duration
}

type cachedList struct {
	names     []string
	expiresAt time.Time
}

// NewService creates a new location service.
func NewService(cfg ServiceConfig) *Service {
	countriesTTL := cfg.CountriesTTL
	if countriesTTL == 0 {
		countriesTTL = DefaultCountriesTTL
	}

	statesTTL := cfg.StatesTTL
	if statesTTL == 0 {
		statesTTL = DefaultStatesTTL
	}

	citiesTTL := cfg.CitiesTTL
	if citiesTTL == 0 {
		citiesTTL = DefaultCitiesTTL
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		directory:       cfg.Directory,
		logger:          cfg.Logger,
		countriesTTL:    countriesTTL,
		statesTTL:       statesTTL,
		citiesTTL:       citiesTTL,
		metrics:         cfg.Metrics,
		now:             now,
		entries:         make(map[string]cachedList),
		cleanupInterval: 10 * time.Minute,
	}
}

// Countries returns every supported country, sorted.
func (s *Service) Countries(ctx context.Context, key string) ([]string, error) {
	return s.lookup("countries", key, nil, s.countriesTTL, func(d Directory) ([]string, error) {
		return d.Countries(ctx)
	})
}

// States returns the states of country, sorted. A country without states
// yields an empty list.
func (s *Service) States(ctx context.Context, key, country string) ([]string, error) {
	return s.lookup("states", key, []string{country}, s.statesTTL, func(d Directory) ([]string, error) {
		return d.States(ctx, country)
	})
}

// Cities returns the cities of a state, sorted. A state without cities
// yields an empty list.
func (s *Service) Cities(ctx context.Context, key, country, state string) ([]string, error) {
	return s.lookup("cities", key, []string{country, state}, s.citiesTTL, func(d Directory) ([]string, error) {
		return d.Cities(ctx, country, state)
	})
}

// Invalidate clears all cached lists.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]cachedList)
}

// Len returns the number of cached lists, fresh or not.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Service) lookup(kind, key string, params []string, ttl time.Duration, fetch func(Directory) ([]string, error)) ([]string, error) {
	cacheKey := entryKey(kind, key, params)

	s.mu.RLock()
	if cached, ok := s.entries[cacheKey]; ok && s.now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.recordHit(kind)
		return cloneNames(cached.names), nil
	}
	s.mu.RUnlock()

	s.recordMiss(kind)

	s.logger.Debug().
		Str("kind", kind).
		Strs("params", params).
		Msg("fetching location directory from provider")

	names, err := fetch(s.directory(key))
	if err != nil {
		s.logger.Warn().Err(err).
			Str("kind", kind).
			Strs("params", params).
			Msg("failed to fetch location directory")
		return nil, err
	}
	if names == nil {
		names = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[cacheKey] = cachedList{names: cloneNames(names), expiresAt: now.Add(ttl)}
	s.cleanupIfNeeded(now)

	return names, nil
}

// cleanupIfNeeded drops expired entries once per cleanup interval.
// Must be called with mu held.
func (s *Service) cleanupIfNeeded(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := 0
	for k, cached := range s.entries {
		if !now.Before(cached.expiresAt) {
			delete(s.entries, k)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired directory entries")
	}
}

func (s *Service) recordHit(kind string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(providerName, kind)
	}
}

func (s *Service) recordMiss(kind string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(providerName, kind)
	}
}

// entryKey combines the listing kind, a fingerprint of the credential and the
// lowercased parameters. Raw keys never end up in the map.
func entryKey(kind, key string, params []string) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte('|')
	b.WriteString(fingerprint(key))
	for _, p := range params {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(strings.TrimSpace(p)))
	}
	return b.String()
}

func fingerprint(key string) string {
	if key == "" {
		return "default"
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func cloneNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}
