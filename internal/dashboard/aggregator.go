package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/airquality/iqair"
	"github.com/air13x/air13x/internal/airquality/waqi"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/ranking"
	"github.com/air13x/air13x/internal/weather"
	"github.com/air13x/air13x/internal/weather/openweathermap"
)

const tracerName = "github.com/air13x/air13x/internal/dashboard"

// FetchRecorder records fetch lifecycle metrics.
type FetchRecorder interface {
	FetchStarted()
	FetchSettled(duration time.Duration)
	RecordSlot(slot, errorKind string)
}

// AggregatorConfig holds configuration for the aggregator.
type AggregatorConfig struct {
	IQAir       *iqair.Client
	OpenWeather *openweathermap.Client
	WAQI        *waqi.Client
	Ranking     *ranking.Pool

	// Targets are the ranking city identifiers (default: ranking.DefaultTargets).
	Targets []string

	// Credentials are used for any key a request leaves empty.
	Credentials Credentials

	// FetchTimeout bounds a whole background fetch (default: 2 minutes).
	FetchTimeout time.Duration

	Metrics FetchRecorder
	Logger  zerolog.Logger
}

// Aggregator fans a trigger out to every provider and fills the session slots.
type Aggregator struct {
	iqair        *iqair.Client
	owm          *openweathermap.Client
	waqi         *waqi.Client
	pool         *ranking.Pool
	targets      []string
	credentials  Credentials
	fetchTimeout time.Duration
	validator    *Validator
	metrics      FetchRecorder
	logger       zerolog.Logger
	tracer       trace.Tracer

	wg sync.WaitGroup
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	targets := cfg.Targets
	if len(targets) == 0 {
		targets = ranking.DefaultTargets()
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 2 * time.Minute
	}

	return &Aggregator{
		iqair:        cfg.IQAir,
		owm:          cfg.OpenWeather,
		waqi:         cfg.WAQI,
		pool:         cfg.Ranking,
		targets:      targets,
		credentials:  cfg.Credentials,
		fetchTimeout: fetchTimeout,
		validator:    NewValidator(),
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		tracer:       otel.Tracer(tracerName),
	}
}

// Trigger validates req, filling missing keys from the configured
// credentials, and moves the session to Fetching. On a validation error the
// session is untouched and no provider is called.
func (a *Aggregator) Trigger(s *Session, req Request) (uint64, Request, error) {
	req.Keys = req.Keys.Merge(a.credentials)
	if err := a.validator.Validate(&req); err != nil {
		return 0, req, err
	}

	return s.Trigger(req.Location, req.Keys.Mapbox), req, nil
}

// Start triggers the session and runs the fetch in the background.
// It returns as soon as the session is Fetching.
func (a *Aggregator) Start(s *Session, req Request) (uint64, error) {
	version, req, err := a.Trigger(s, req)
	if err != nil {
		return 0, err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.fetchTimeout)
		defer cancel()
		a.Fetch(ctx, s, version, req)
	}()
	return version, nil
}

// Wait blocks until every background fetch has returned.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// Fetch runs one triggered fetch to completion. The ranking runs alongside
// geocoding; every other provider call waits for coordinates.
func (a *Aggregator) Fetch(ctx context.Context, s *Session, version uint64, req Request) {
	ctx, span := a.tracer.Start(ctx, "dashboard.fetch", trace.WithAttributes(
		attribute.String("session.id", s.ID()),
		attribute.Int64("session.version", int64(version)),
		attribute.String("location.country", req.Country),
	))
	defer span.End()

	start := time.Now()
	if a.metrics != nil {
		a.metrics.FetchStarted()
		defer func() { a.metrics.FetchSettled(time.Since(start)) }()
	}

	logger := a.logger.With().
		Str("session_id", s.ID()).
		Uint64("version", version).
		Logger()

	defer func() {
		failed := s.Snapshot().Slots.SlotErrors()
		span.SetAttributes(attribute.Int("dashboard.failed_slots", len(failed)))
		logger.Info().
			Dur("duration", time.Since(start)).
			Int("failed_slots", len(failed)).
			Msg("dashboard fetch finished")
	}()

	iq := a.iqair.WithAPIKey(req.Keys.IQAir)
	owm := a.owm.WithAPIKey(req.Keys.OpenWeather)
	wq := a.waqi.WithToken(req.Keys.WAQI)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() {
		result := a.pool.WithFeeder(wq).Run(ctx, a.targets)
		slot := result.Slot()
		a.record(logger, SlotRanking, s.SetRanking(version, slot), slot.Err())
	})

	coords, err := owm.GeocodeWithFallback(ctx, req.City, req.State, req.Country)
	location := provider.From(coords, err)
	a.record(logger, SlotLocation, s.SetLocation(version, location), location.Err())

	if err != nil {
		span.SetStatus(codes.Error, "location unresolved")
		a.failDependents(logger, s, version, location.Err())
		wg.Wait()
		return
	}

	span.SetAttributes(attribute.Float64("location.lat", coords.Lat), attribute.Float64("location.lon", coords.Lon))

	run(func() {
		reading, err := iq.CurrentCity(ctx, req.City, req.State, req.Country)
		r := provider.From(reading, err)
		a.record(logger, SlotAQI, s.SetAQI(version, r), r.Err())
	})
	run(func() {
		reading, err := owm.CurrentWeather(ctx, req.City, req.Country)
		r := provider.From(reading, err)
		a.record(logger, SlotWeather, s.SetWeather(version, r), r.Err())
	})
	run(func() {
		points, err := owm.History(ctx, coords.Lat, coords.Lon)
		r := provider.From(points, err)
		a.record(logger, SlotHistory, s.SetHistory(version, r), r.Err())
	})
	run(func() {
		stations, err := wq.Nearby(ctx, coords.Lat, coords.Lon, waqi.DefaultNearbyRadius, waqi.DefaultNearbyLimit)
		r := provider.From(stations, err)
		a.record(logger, SlotNearby, s.SetNearby(version, r), r.Err())
	})
	run(func() {
		r := a.forecast(ctx, owm, coords)
		a.record(logger, SlotForecast, s.SetForecast(version, r), r.Err())
	})
	run(func() {
		r := a.worldMap(ctx, wq, coords, req.Keys.Mapbox)
		a.record(logger, SlotMap, s.SetMap(version, r), r.Err())
	})

	wg.Wait()
}

// forecast fetches the weather and pollution forecasts together and combines
// them. The slot fails if either part fails.
func (a *Aggregator) forecast(ctx context.Context, owm *openweathermap.Client, coords weather.Coordinates) provider.Result[[]ForecastRow] {
	var (
		wg        sync.WaitGroup
		days      []weather.DailySummary
		levels    []airquality.DailyLevel
		daysErr   error
		levelsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		days, daysErr = owm.Forecast(ctx, coords.Lat, coords.Lon)
	}()
	go func() {
		defer wg.Done()
		levels, levelsErr = owm.PollutionForecast(ctx, coords.Lat, coords.Lon)
	}()
	wg.Wait()

	if ferr := ForecastError(daysErr, levelsErr); ferr != nil {
		return provider.ErrResult[[]ForecastRow](ferr)
	}
	return provider.OkResult(CombineForecast(days, levels))
}

func (a *Aggregator) worldMap(ctx context.Context, wq *waqi.Client, coords weather.Coordinates, mapboxToken string) provider.Result[[]airquality.Station] {
	if mapboxToken == "" {
		return provider.ErrResult[[]airquality.Station](provider.Missing("mapbox", "token"))
	}
	box := airquality.BoxAround(coords.Lat, coords.Lon, waqi.DefaultMapRadius)
	stations, err := wq.Bounds(ctx, box)
	return provider.From(stations, err)
}

// failDependents gives every coordinate-dependent slot the location error.
func (a *Aggregator) failDependents(logger zerolog.Logger, s *Session, version uint64, cause *provider.Error) {
	a.record(logger, SlotAQI, s.SetAQI(version, provider.ErrResult[airquality.Reading](cause)), cause)
	a.record(logger, SlotWeather, s.SetWeather(version, provider.ErrResult[weather.Reading](cause)), cause)
	a.record(logger, SlotHistory, s.SetHistory(version, provider.ErrResult[[]airquality.HistoryPoint](cause)), cause)
	a.record(logger, SlotNearby, s.SetNearby(version, provider.ErrResult[[]airquality.Station](cause)), cause)
	a.record(logger, SlotForecast, s.SetForecast(version, provider.ErrResult[[]ForecastRow](cause)), cause)
	a.record(logger, SlotMap, s.SetMap(version, provider.ErrResult[[]airquality.Station](cause)), cause)
}

func (a *Aggregator) record(logger zerolog.Logger, slot string, applied bool, err *provider.Error) {
	if !applied {
		logger.Debug().Str("slot", slot).Msg("dropped stale slot write")
		return
	}

	kind := ""
	if err != nil {
		kind = err.Kind.String()
		logger.Warn().
			Str("slot", slot).
			Str("error_kind", kind).
			Str("provider", err.Provider).
			Msg(err.Message)
	}
	if a.metrics != nil {
		a.metrics.RecordSlot(slot, kind)
	}
}
