package dashboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/air13x/air13x/internal/airquality/iqair"
	"github.com/air13x/air13x/internal/airquality/waqi"
	"github.com/air13x/air13x/internal/dashboard"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/ranking"
	"github.com/air13x/air13x/internal/weather/openweathermap"
)

// fakeProviders serves the three upstream APIs and counts calls per provider.
type fakeProviders struct {
	weatherDown bool
	geocodeMiss bool
	// gate, when set, holds geocoding until closed.
	gate chan struct{}

	iqairCalls atomic.Int32
	owmCalls   atomic.Int32
	waqiCalls  atomic.Int32
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeProviders) iqair(w http.ResponseWriter, r *http.Request) {
	f.iqairCalls.Add(1)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"city": "Lima", "state": "Lima", "country": "Peru",
			"current": map[string]interface{}{
				"pollution": map[string]interface{}{"ts": "2026-03-01T12:00:00.000Z", "aqius": 57, "mainus": "p2"},
			},
		},
	})
}

func (f *fakeProviders) openWeather(w http.ResponseWriter, r *http.Request) {
	f.owmCalls.Add(1)
	day := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC).Unix()

	switch r.URL.Path {
	case "/geo/1.0/direct":
		if f.gate != nil {
			<-f.gate
		}
		if f.geocodeMiss {
			writeJSON(w, http.StatusOK, []interface{}{})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"name": "Lima", "lat": -12.05, "lon": -77.04, "country": "PE"},
		})
	case "/data/2.5/weather":
		if f.weatherDown {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"cod": 503, "message": "service unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"cod":     200,
			"name":    "Lima",
			"weather": []map[string]interface{}{{"main": "Clouds", "description": "broken clouds", "icon": "04d"}},
			"main":    map[string]interface{}{"temp": 22.5, "feels_like": 22.9, "pressure": 1013, "humidity": 78},
			"wind":    map[string]interface{}{"speed": 4.1},
			"sys":     map[string]interface{}{"country": "PE"},
			"dt":      day,
		})
	case "/data/2.5/air_pollution/history":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"list": []map[string]interface{}{
				{"dt": day, "main": map[string]interface{}{"aqi": 2}, "components": map[string]interface{}{"pm2_5": 14.2}},
			},
		})
	case "/data/2.5/forecast":
		if f.weatherDown {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"cod": 503, "message": "service unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"list": []map[string]interface{}{
				{"dt": day, "main": map[string]interface{}{"temp": 24.0}, "weather": []map[string]interface{}{{"description": "clear sky", "icon": "01d"}}},
			},
		})
	case "/data/2.5/air_pollution/forecast":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"list": []map[string]interface{}{
				{"dt": day, "main": map[string]interface{}{"aqi": 3}},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeProviders) waqi(w http.ResponseWriter, r *http.Request) {
	f.waqiCalls.Add(1)
	switch {
	case strings.HasPrefix(r.URL.Path, "/feed/"):
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/feed/"), "/")
		aqi := map[string]int{"lahore": 180, "lima": 60}[id]
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"aqi": aqi, "city": map[string]interface{}{"name": id}},
		})
	case r.URL.Path == "/map/bounds/":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data": []map[string]interface{}{
				{"lat": -12.1, "lon": -77.0, "uid": 1, "aqi": "61", "station": map[string]string{"name": "Miraflores"}},
				{"lat": -11.9, "lon": -77.1, "uid": 2, "aqi": "-", "station": map[string]string{"name": "Offline"}},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestAggregator(t *testing.T, f *fakeProviders, defaults dashboard.Credentials) *dashboard.Aggregator {
	t.Helper()
	iqServer := httptest.NewServer(http.HandlerFunc(f.iqair))
	owmServer := httptest.NewServer(http.HandlerFunc(f.openWeather))
	waqiServer := httptest.NewServer(http.HandlerFunc(f.waqi))
	t.Cleanup(func() {
		iqServer.Close()
		owmServer.Close()
		waqiServer.Close()
	})

	return dashboard.NewAggregator(dashboard.AggregatorConfig{
		IQAir:       iqair.NewClient(iqair.ClientConfig{BaseURL: iqServer.URL, HTTPClient: http.DefaultClient}),
		OpenWeather: openweathermap.NewClient(openweathermap.ClientConfig{BaseURL: owmServer.URL, HTTPClient: http.DefaultClient, Logger: zerolog.Nop()}),
		WAQI:        waqi.NewClient(waqi.ClientConfig{BaseURL: waqiServer.URL, HTTPClient: http.DefaultClient}),
		Ranking:     ranking.NewPool(ranking.Config{Workers: 2, Logger: zerolog.Nop()}),
		Targets:     []string{"lima", "lahore"},
		Credentials: defaults,
		Logger:      zerolog.Nop(),
	})
}

var jakarta = dashboard.Location{City: "Jakarta", State: "Jakarta", Country: "Indonesia"}

func limaRequest() dashboard.Request {
	return dashboard.Request{Location: lima, Keys: fullKeys()}
}

func fetch(t *testing.T, agg *dashboard.Aggregator, s *dashboard.Session, req dashboard.Request) {
	t.Helper()
	version, req, err := agg.Trigger(s, req)
	require.NoError(t, err)
	agg.Fetch(context.Background(), s, version, req)
}

func TestAggregator_FullSuccess(t *testing.T) {
	f := &fakeProviders{}
	agg := newTestAggregator(t, f, dashboard.Credentials{})
	s := dashboard.NewSession("s-1", nil)

	fetch(t, agg, s, limaRequest())

	snap := s.Snapshot()
	assert.Equal(t, dashboard.Settled, snap.State)
	assert.Empty(t, snap.Slots.SlotErrors())

	coords, ok := snap.Slots.Location.Value()
	require.True(t, ok)
	assert.InDelta(t, -12.05, coords.Lat, 1e-9)

	reading, ok := snap.Slots.AQI.Value()
	require.True(t, ok)
	require.NotNil(t, reading.Index)
	assert.Equal(t, 57, *reading.Index)

	rows, ok := snap.Slots.Forecast.Value()
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "Clear sky", rows[0].Condition)
	assert.Equal(t, "Moderate", rows[0].MaxLevelLabel)

	mapped, ok := snap.Slots.Map.Value()
	require.True(t, ok)
	require.Len(t, mapped, 1)
	assert.Equal(t, "Miraflores", mapped[0].Name)

	ranked, ok := snap.Slots.Ranking.Value()
	require.True(t, ok)
	require.Len(t, ranked.Entries, 2)
	assert.Equal(t, "lahore", ranked.Entries[0].CityID)
	assert.Empty(t, ranked.Warning)

	view := dashboard.BuildView(snap)
	assert.Equal(t, "Moderate", view.Category.Label)
	assert.Equal(t, "PM2.5", view.Pollutant)
	assert.Equal(t, "High humidity can sometimes contribute to haze.", view.AnalyticalNote)
}

func TestAggregator_WeatherOutageLeavesAirQuality(t *testing.T) {
	f := &fakeProviders{weatherDown: true}
	agg := newTestAggregator(t, f, dashboard.Credentials{})
	s := dashboard.NewSession("s-1", nil)

	fetch(t, agg, s, limaRequest())

	snap := s.Snapshot()
	assert.Equal(t, dashboard.Settled, snap.State)

	failed := snap.Slots.SlotErrors()
	assert.Len(t, failed, 2)
	assert.Equal(t, provider.ProviderRejected, failed[dashboard.SlotWeather].Kind)
	require.Contains(t, failed, dashboard.SlotForecast)
	assert.Contains(t, failed[dashboard.SlotForecast].Message, "AQI: OK")

	assert.True(t, snap.Slots.AQI.IsOk())
	assert.True(t, snap.Slots.Ranking.IsOk())
	assert.True(t, snap.Slots.History.IsOk())

	view := dashboard.BuildView(snap)
	assert.True(t, view.Gauge.Available)
	assert.Equal(t, "57", view.Gauge.DisplayValue)
}

func TestAggregator_UnresolvedLocationFailsDependents(t *testing.T) {
	f := &fakeProviders{geocodeMiss: true}
	agg := newTestAggregator(t, f, dashboard.Credentials{})
	s := dashboard.NewSession("s-1", nil)

	fetch(t, agg, s, limaRequest())

	snap := s.Snapshot()
	assert.Equal(t, dashboard.Settled, snap.State)

	locErr := snap.Slots.Location.Err()
	require.NotNil(t, locErr)
	assert.Equal(t, provider.ProviderRejected, locErr.Kind)

	for _, name := range []string{
		dashboard.SlotAQI, dashboard.SlotWeather, dashboard.SlotHistory,
		dashboard.SlotNearby, dashboard.SlotForecast, dashboard.SlotMap,
	} {
		err := snap.Slots.SlotErrors()[name]
		require.NotNil(t, err, name)
		assert.Equal(t, locErr.Message, err.Message, name)
	}

	assert.True(t, snap.Slots.Ranking.IsOk(), "ranking does not depend on the location")
	assert.Zero(t, f.iqairCalls.Load())
	assert.Equal(t, int32(2), f.owmCalls.Load(), "geocode and its fallback only")
}

func TestAggregator_MissingCredentialsMakeNoCalls(t *testing.T) {
	f := &fakeProviders{}
	agg := newTestAggregator(t, f, dashboard.Credentials{})
	s := dashboard.NewSession("s-1", nil)

	_, _, err := agg.Trigger(s, dashboard.Request{Location: lima})

	var verr *dashboard.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"keys.iqairApiKey", "keys.mapboxToken", "keys.openWeatherApiKey", "keys.waqiToken"}, verr.Fields)
	assert.Equal(t, dashboard.Idle, s.State())
	assert.Zero(t, f.iqairCalls.Load()+f.owmCalls.Load()+f.waqiCalls.Load())
}

func TestAggregator_ConfiguredCredentialsFillRequest(t *testing.T) {
	f := &fakeProviders{gate: make(chan struct{})}
	agg := newTestAggregator(t, f, fullKeys())
	s := dashboard.NewSession("s-1", nil)

	version, err := agg.Start(s, dashboard.Request{Location: lima})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	close(f.gate)
	agg.Wait()
	assert.Equal(t, dashboard.Settled, s.State())
	assert.Equal(t, "pk.mapbox", s.Snapshot().MapboxToken)
}

func TestAggregator_TriggerDuringFetchSupersedesIt(t *testing.T) {
	f := &fakeProviders{gate: make(chan struct{})}
	agg := newTestAggregator(t, f, fullKeys())
	s := dashboard.NewSession("s-1", nil)

	first, err := agg.Start(s, dashboard.Request{Location: lima})
	require.NoError(t, err)

	second, err := agg.Start(s, dashboard.Request{Location: jakarta})
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	close(f.gate)
	agg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, dashboard.Settled, snap.State)
	assert.Equal(t, second, snap.Version)
	require.NotNil(t, snap.Location)
	assert.Equal(t, "Jakarta", snap.Location.City)
}

func TestAggregator_SupersededFetchWritesAreDropped(t *testing.T) {
	f := &fakeProviders{}
	agg := newTestAggregator(t, f, dashboard.Credentials{})
	s := dashboard.NewSession("s-1", nil)
	ctx := context.Background()

	first, firstReq, err := agg.Trigger(s, limaRequest())
	require.NoError(t, err)
	second, secondReq, err := agg.Trigger(s, dashboard.Request{Location: jakarta, Keys: fullKeys()})
	require.NoError(t, err)

	agg.Fetch(ctx, s, first, firstReq)

	snap := s.Snapshot()
	assert.NotZero(t, f.owmCalls.Load())
	assert.Equal(t, dashboard.Fetching, snap.State)
	assert.Equal(t, second, snap.Version)
	assert.True(t, snap.Slots.Location.IsPending())
	assert.True(t, snap.Slots.AQI.IsPending())
	assert.True(t, snap.Slots.Ranking.IsPending())
	assert.Empty(t, snap.Slots.SlotErrors())

	agg.Fetch(ctx, s, second, secondReq)

	snap = s.Snapshot()
	assert.Equal(t, dashboard.Settled, snap.State)
	assert.True(t, snap.Slots.AQI.IsOk())
	assert.True(t, snap.Slots.Ranking.IsOk())
}

func TestAggregator_ResetDiscardsRunningFetch(t *testing.T) {
	f := &fakeProviders{}
	agg := newTestAggregator(t, f, dashboard.Credentials{})
	s := dashboard.NewSession("s-1", nil)

	version, req, err := agg.Trigger(s, limaRequest())
	require.NoError(t, err)
	s.Reset()

	agg.Fetch(context.Background(), s, version, req)

	snap := s.Snapshot()
	assert.Equal(t, dashboard.Idle, snap.State)
	assert.True(t, snap.Slots.AQI.IsPending())
	assert.True(t, snap.Slots.Ranking.IsPending())
}
