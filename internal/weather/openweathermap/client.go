package openweathermap

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/provider/resilience"
	"github.com/air13x/air13x/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org"

	// HistoryWindow is how far back pollution history reaches.
	HistoryWindow = 7 * 24 * time.Hour
)

// Timeouts per endpoint.
const (
	GeocodeTimeout  = 10 * time.Second
	WeatherTimeout  = 15 * time.Second
	ForecastTimeout = 15 * time.Second
	HistoryTimeout  = 20 * time.Second
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key. Calls fail with MissingInput when empty.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient provider.HTTPDoer

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient provider.HTTPDoer
	now        func() time.Time
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = HistoryTimeout
		httpClient = resilience.NewClient(clientCfg)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		now:        now,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// WithAPIKey returns a copy of the client that authenticates with key.
func (c *Client) WithAPIKey(key string) *Client {
	clone := *c
	clone.apiKey = strings.TrimSpace(key)
	return &clone
}

// Geocode resolves a free-form "city,state,country" query to coordinates.
// An empty result is ProviderRejected.
func (c *Client) Geocode(ctx context.Context, query string) (weather.Coordinates, error) {
	var coords weather.Coordinates
	if c.apiKey == "" {
		return coords, provider.Missing(ProviderName, "api key")
	}
	if strings.TrimSpace(query) == "" {
		return coords, provider.Missing(ProviderName, "location query")
	}

	var places []geocodeResult
	params := url.Values{"q": {query}, "limit": {"1"}}
	if err := c.get(ctx, "/geo/1.0/direct", params, GeocodeTimeout, &places); err != nil {
		return coords, err
	}

	if len(places) == 0 {
		return coords, provider.Errorf(ProviderName, provider.ProviderRejected, "location %q not found", query)
	}
	place := places[0]
	if place.Lat == nil || place.Lon == nil {
		return coords, provider.Errorf(ProviderName, provider.ProviderRejected, "no coordinates for %q", query)
	}

	return weather.Coordinates{
		Lat:         *place.Lat,
		Lon:         *place.Lon,
		Name:        place.Name,
		CountryCode: place.Country,
	}, nil
}

// GeocodeWithFallback tries the full "city,state,country" query first. When
// that fails for a reason a simpler query could fix, it retries once with
// "city,country". If both fail, the second error is returned.
func (c *Client) GeocodeWithFallback(ctx context.Context, city, state, country string) (weather.Coordinates, error) {
	full := joinQuery(city, state, country)
	coords, err := c.Geocode(ctx, full)
	if err == nil || !fallbackAllowed(err) {
		return coords, err
	}

	simple := joinQuery(city, country)
	if simple == full {
		return coords, err
	}

	c.logger.Debug().
		Str("query", simple).
		AnErr("first_error", err).
		Msg("retrying geocoding with simplified query")

	return c.Geocode(ctx, simple)
}

// CurrentWeather fetches the current weather for a city, in metric units.
func (c *Client) CurrentWeather(ctx context.Context, city, country string) (weather.Reading, error) {
	var reading weather.Reading
	if c.apiKey == "" {
		return reading, provider.Missing(ProviderName, "api key")
	}
	if strings.TrimSpace(city) == "" {
		return reading, provider.Missing(ProviderName, "city")
	}

	var resp currentWeatherResponse
	params := url.Values{"q": {joinQuery(city, country)}, "units": {"metric"}}
	if err := c.get(ctx, "/data/2.5/weather", params, WeatherTimeout, &resp); err != nil {
		return reading, err
	}
	if resp.Cod.String() != "200" {
		message := resp.Message
		if message == "" {
			message = "unknown error"
		}
		return reading, provider.Errorf(ProviderName, provider.ProviderRejected, "%s (code: %s)", message, resp.Cod)
	}

	return resp.toReading(), nil
}

// History fetches hourly PM2.5 for the trailing HistoryWindow, oldest first.
// Samples missing either the timestamp or the PM2.5 value are dropped.
func (c *Client) History(ctx context.Context, lat, lon float64) ([]airquality.HistoryPoint, error) {
	if err := c.checkCoordinates(lat, lon); err != nil {
		return nil, err
	}

	end := c.now().UTC()
	start := end.Add(-HistoryWindow)
	params := coordParams(lat, lon)
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))

	var resp pollutionResponse
	if err := c.get(ctx, "/data/2.5/air_pollution/history", params, HistoryTimeout, &resp); err != nil {
		return nil, err
	}
	if resp.List == nil {
		return nil, provider.Errorf(ProviderName, provider.UnexpectedShape, "history response has no list")
	}

	points := make([]airquality.HistoryPoint, 0, len(*resp.List))
	for _, entry := range *resp.List {
		if entry.Dt == nil || entry.Components.PM25 == nil {
			continue
		}
		points = append(points, airquality.HistoryPoint{
			Timestamp: time.Unix(*entry.Dt, 0).UTC(),
			PM25:      *entry.Components.PM25,
		})
	}
	return airquality.NormalizeHistory(points), nil
}

// Forecast fetches the 5-day/3-hour forecast and reduces it to at most
// weather.MaxForecastDays daily summaries.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]weather.DailySummary, error) {
	if err := c.checkCoordinates(lat, lon); err != nil {
		return nil, err
	}

	params := coordParams(lat, lon)
	params.Set("units", "metric")

	var resp forecastResponse
	if err := c.get(ctx, "/data/2.5/forecast", params, ForecastTimeout, &resp); err != nil {
		return nil, err
	}
	if resp.List == nil {
		return nil, provider.Errorf(ProviderName, provider.UnexpectedShape, "forecast response has no list")
	}

	samples := make([]weather.Sample, 0, len(*resp.List))
	for _, item := range *resp.List {
		if item.Dt == nil {
			continue
		}
		sample := weather.Sample{
			Time:        time.Unix(*item.Dt, 0).UTC(),
			Temperature: item.Main.Temp,
		}
		if len(item.Weather) > 0 {
			sample.Description = item.Weather[0].Description
			sample.Icon = item.Weather[0].Icon
		}
		samples = append(samples, sample)
	}
	return weather.BucketDaily(samples, weather.MaxForecastDays), nil
}

// PollutionForecast fetches the hourly air pollution forecast and returns the
// maximum 1-5 level per UTC date. A response without a list is an empty forecast.
func (c *Client) PollutionForecast(ctx context.Context, lat, lon float64) ([]airquality.DailyLevel, error) {
	if err := c.checkCoordinates(lat, lon); err != nil {
		return nil, err
	}

	var resp pollutionResponse
	if err := c.get(ctx, "/data/2.5/air_pollution/forecast", coordParams(lat, lon), ForecastTimeout, &resp); err != nil {
		return nil, err
	}
	if resp.List == nil {
		return []airquality.DailyLevel{}, nil
	}

	samples := make([]airquality.PollutionSample, 0, len(*resp.List))
	for _, entry := range *resp.List {
		if entry.Dt == nil || entry.Main.AQI == nil {
			continue
		}
		samples = append(samples, airquality.PollutionSample{
			Timestamp: time.Unix(*entry.Dt, 0).UTC(),
			Level:     *entry.Main.AQI,
		})
	}
	return airquality.DailyMaxLevels(samples), nil
}

func (c *Client) checkCoordinates(lat, lon float64) error {
	if c.apiKey == "" {
		return provider.Missing(ProviderName, "api key")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return provider.Errorf(ProviderName, provider.BadRequest, "invalid coordinates %.4f,%.4f", lat, lon)
	}
	return nil
}

// get calls path with params plus the API key and decodes the body into out.
// A non-2xx response becomes a status error carrying OWM's message.
func (c *Client) get(ctx context.Context, path string, params url.Values, timeout time.Duration, out any) error {
	params.Set("appid", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	resp, err := provider.Get(ctx, c.httpClient, ProviderName, reqURL, timeout)
	if err != nil {
		return err
	}

	if !provider.IsSuccess(resp.StatusCode) {
		var failure errorResponse
		_ = json.Unmarshal(resp.Body, &failure)
		return provider.StatusError(ProviderName, resp.StatusCode, failure.Message)
	}

	return provider.Decode(ProviderName, resp.Body, out)
}

func fallbackAllowed(err error) bool {
	switch provider.KindOf(err) {
	case provider.Unauthorized, provider.MissingInput, provider.Transport:
		return false
	default:
		return true
	}
}

func joinQuery(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ",")
}

func coordParams(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
}

func (r *currentWeatherResponse) toReading() weather.Reading {
	reading := weather.Reading{
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		Humidity:    r.Main.Humidity,
		PressureHPa: r.Main.Pressure,
		WindSpeed:   r.Wind.Speed,
		PlaceName:   r.Name,
		CountryCode: r.Sys.Country,
	}
	if len(r.Weather) > 0 {
		w := r.Weather[0]
		if w.Description != nil {
			description := weather.Capitalize(*w.Description)
			reading.Description = &description
		}
		reading.IconCode = w.Icon
	}
	if r.Dt != nil {
		observed := time.Unix(*r.Dt, 0).UTC()
		reading.ObservedAt = &observed
	}
	return reading
}
