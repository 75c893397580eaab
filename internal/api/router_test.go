package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/air13x/air13x/internal/api"
	"github.com/air13x/air13x/internal/api/handler"
	"github.com/air13x/air13x/internal/api/models"
	"github.com/air13x/air13x/internal/dashboard"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/provider/resilience"
)

// fakeDirectory answers directory listings from fixed data.
type fakeDirectory struct {
	lastKey atomic.Value
}

func (d *fakeDirectory) Countries(_ context.Context, key string) ([]string, error) {
	d.lastKey.Store(key)
	return []string{"Pakistan", "Peru"}, nil
}

func (d *fakeDirectory) States(_ context.Context, key, country string) ([]string, error) {
	d.lastKey.Store(key)
	if country == "Atlantis" {
		return nil, provider.Errorf("iqair", provider.ProviderRejected, "country_not_found")
	}
	return []string{"Lima"}, nil
}

func (d *fakeDirectory) Cities(_ context.Context, key, _, _ string) ([]string, error) {
	d.lastKey.Store(key)
	if key == "" {
		return nil, provider.Missing("iqair", "key")
	}
	return nil, nil
}

// fakeFetcher validates and triggers like the aggregator but never calls a
// provider.
type fakeFetcher struct {
	validator *dashboard.Validator
	defaults  dashboard.Credentials
}

func (f *fakeFetcher) Start(s *dashboard.Session, req dashboard.Request) (uint64, error) {
	req.Keys = req.Keys.Merge(f.defaults)
	if err := f.validator.Validate(&req); err != nil {
		return 0, err
	}
	return s.Trigger(req.Location, req.Keys.Mapbox), nil
}

type fakeHealth []*resilience.ProviderHealth

func (h fakeHealth) GetAllHealth() []*resilience.ProviderHealth { return h }

type testEnv struct {
	router    http.Handler
	store     *dashboard.Store
	directory *fakeDirectory
}

func newTestEnv(t *testing.T, health handler.HealthSource) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := dashboard.NewStore(dashboard.StoreConfig{Logger: logger})
	directory := &fakeDirectory{}

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Health:    health,
		Locations: directory,
		Sessions:  store,
		Fetcher: &fakeFetcher{
			validator: dashboard.NewValidator(),
			defaults:  dashboard.Credentials{IQAir: "iq", OpenWeather: "owm", WAQI: "waqi"},
		},
	})
	return &testEnv{router: router, store: store, directory: directory}
}

func (e *testEnv) do(t *testing.T, method, path string, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestOpsEndpoints(t *testing.T) {
	failedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, fakeHealth{
		{Name: "iqair", CircuitState: gobreaker.StateClosed, Counts: gobreaker.Counts{Requests: 4}},
		{Name: "waqi", CircuitState: gobreaker.StateOpen, Counts: gobreaker.Counts{ConsecutiveFailures: 5}, LastFailureAt: &failedAt, LastError: "503 from upstream"},
	})
	env.store.Create()

	t.Run("health", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "OK", body["status"])
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})

	t.Run("ready is degraded while a circuit is open", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/ops/ready", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "DEGRADED", body["status"])
		assert.Equal(t, []interface{}{"waqi"}, body["details"].(map[string]interface{})["openCircuits"])
	})

	t.Run("status", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/ops/status", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var status struct {
			Status    string `json:"status"`
			Sessions  int    `json:"sessions"`
			Providers []struct {
				Provider            string  `json:"provider"`
				Status              string  `json:"status"`
				CircuitState        string  `json:"circuitState"`
				ConsecutiveFailures uint32  `json:"consecutiveFailures"`
				LastFailureAt       *string `json:"lastFailureAt"`
				Message             *string `json:"message"`
			} `json:"providers"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))

		assert.Equal(t, "DEGRADED", status.Status)
		assert.Equal(t, 1, status.Sessions)
		require.Len(t, status.Providers, 2)
		assert.Equal(t, "OK", status.Providers[0].Status)
		assert.Equal(t, "closed", status.Providers[0].CircuitState)
		assert.Nil(t, status.Providers[0].LastFailureAt)

		waqi := status.Providers[1]
		assert.Equal(t, "FAIL", waqi.Status)
		assert.Equal(t, "open", waqi.CircuitState)
		assert.Equal(t, uint32(5), waqi.ConsecutiveFailures)
		require.NotNil(t, waqi.LastFailureAt)
		assert.Equal(t, "2026-03-02T10:00:00Z", *waqi.LastFailureAt)
		require.NotNil(t, waqi.Message)
		assert.Equal(t, "503 from upstream", *waqi.Message)
	})
}

func TestLocationEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/v1/locations/countries", "", map[string]string{handler.IQAirKeyHeader: " mine "})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":["Pakistan","Peru"],"count":2}`, rec.Body.String())
	assert.Equal(t, "mine", env.directory.lastKey.Load())

	rec = env.do(t, http.MethodGet, "/v1/locations/countries/Peru/states", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":["Lima"],"count":1}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/locations/countries/Atlantis/states", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, models.ProblemTypeProvider, body["type"])
	assert.Equal(t, "provider_rejected", body["kind"])
	assert.Equal(t, "country_not_found", body["detail"])

	rec = env.do(t, http.MethodGet, "/v1/locations/countries/Peru/states/Lima/cities", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_input", decode(t, rec)["kind"])

	rec = env.do(t, http.MethodGet, "/v1/locations/countries/Peru/states/Lima/cities", "", map[string]string{handler.IQAirKeyHeader: "k"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"count":0}`, rec.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/v1/sessions/"+id, rec.Header().Get("Location"))
	assert.Equal(t, "idle", created["state"])

	path := "/v1/sessions/" + id

	t.Run("fetch with missing fields lists them", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, path+"/fetch", `{"city":"Lima"}`, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var problem models.Problem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
		fields := make([]string, 0, len(problem.Errors))
		for _, fe := range problem.Errors {
			fields = append(fields, fe.Field)
			assert.Equal(t, "REQUIRED", fe.Code)
		}
		assert.Equal(t, []string{"country", "keys.mapboxToken", "state"}, fields)
		assert.Equal(t, dashboard.Idle, env.mustSession(t, id).State())
	})

	t.Run("fetch rejects non-json bodies", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, path+"/fetch", "", map[string]string{"Content-Type": "text/plain"})
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("fetch rejects malformed json", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, path+"/fetch", `{"city":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("fetch is accepted", func(t *testing.T) {
		body := `{"city":"Lima","state":"Lima","country":"Peru","keys":{"mapboxToken":"pk.test"}}`
		rec := env.do(t, http.MethodPost, path+"/fetch", body, nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, path+"/dashboard", rec.Header().Get("Location"))

		accepted := decode(t, rec)
		assert.Equal(t, id, accepted["sessionId"])
		assert.Equal(t, "fetching", accepted["state"])
		assert.Equal(t, float64(1), accepted["version"])
	})

	t.Run("second fetch supersedes the first", func(t *testing.T) {
		body := `{"city":"Jakarta","state":"Jakarta","country":"Indonesia","keys":{"mapboxToken":"pk.test"}}`
		rec := env.do(t, http.MethodPost, path+"/fetch", body, nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, float64(2), decode(t, rec)["version"])

		snap := env.mustSession(t, id).Snapshot()
		assert.Equal(t, uint64(2), snap.Version)
		require.NotNil(t, snap.Location)
		assert.Equal(t, "Jakarta", snap.Location.City)
	})

	t.Run("snapshot", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		snap := decode(t, rec)
		assert.Equal(t, "fetching", snap["state"])
		assert.NotContains(t, rec.Body.String(), "pk.test")

		slots := snap["slots"].(map[string]interface{})
		for _, name := range dashboard.SlotNames() {
			slot, ok := slots[name].(map[string]interface{})
			require.True(t, ok, name)
			assert.Equal(t, "pending", slot["state"], name)
		}
	})

	t.Run("dashboard view", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, path+"/dashboard", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		view := decode(t, rec)
		assert.Equal(t, "fetching", view["state"])
		m := view["map"].(map[string]interface{})
		assert.Equal(t, "pk.test", m["mapboxToken"])
		assert.Equal(t, float64(dashboard.MapZoom), m["zoom"])
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, path, "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = env.do(t, http.MethodDelete, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFetch_UnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/sessions/does-not-exist/fetch", `{}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestFetch_RateLimitedPerSession(t *testing.T) {
	env := newTestEnv(t, nil)
	session := env.store.Create()
	path := "/v1/sessions/" + session.ID() + "/fetch"

	codes := make([]int, 0, 11)
	for i := 0; i < 11; i++ {
		rec := env.do(t, http.MethodPost, path, `{}`, nil)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusBadRequest, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[10])

	other := env.store.Create()
	rec := env.do(t, http.MethodPost, "/v1/sessions/"+other.ID()+"/fetch", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireTLS(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Logger:     zerolog.New(io.Discard),
		RequireTLS: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Forwarded-Proto", "http")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (e *testEnv) mustSession(t *testing.T, id string) *dashboard.Session {
	t.Helper()
	s, err := e.store.Get(id)
	require.NoError(t, err)
	return s
}
