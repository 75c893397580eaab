// Package waqi provides a client for the World Air Quality Index project API:
// the single-city feed used by the ranking and the bounded station search used
// by the nearby list and the world map.
package waqi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the WAQI API.
	DefaultBaseURL = "https://api.waqi.info"

	// ProviderName identifies this provider.
	ProviderName = "waqi"

	// DefaultNearbyRadius is the half-width in degrees of the nearby search window.
	DefaultNearbyRadius = 1.5

	// DefaultNearbyLimit caps the nearby station list.
	DefaultNearbyLimit = 10

	// DefaultMapRadius is the half-width in degrees of the world map window.
	DefaultMapRadius = 10.0
)

// Timeouts per endpoint. Region searches cost more as the window grows.
const (
	FeedTimeout   = 10 * time.Second
	NearbyTimeout = 20 * time.Second
	MapTimeout    = 30 * time.Second
)

// WAQI reports failures as {"status":"error","data":"<message>"} without codes,
// so these messages are the only way to tell sentinels apart.
const (
	messageUnknownStation = "Unknown station"
	messageInvalidKey     = "Invalid key"
)

// ClientConfig holds configuration for the WAQI client.
type ClientConfig struct {
	// Token is the WAQI API token. Calls fail with MissingInput when empty.
	Token string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient provider.HTTPDoer
}

// Client is a WAQI API client.
type Client struct {
	token      string
	baseURL    string
	httpClient provider.HTTPDoer
}

// NewClient creates a new WAQI client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         MapTimeout,
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		})
	}

	return &Client{
		token:      strings.TrimSpace(cfg.Token),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithToken returns a copy of the client that authenticates with token.
// The transport is shared.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

// API response types.

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// flexibleIndex decodes an aqi that arrives as a number, a numeric string or
// a placeholder such as "-". Valid is false for anything non-numeric.
type flexibleIndex struct {
	Value int
	Valid bool
}

func (f *flexibleIndex) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	f.Value, f.Valid = airquality.ParseIndex(raw)
	return nil
}

type feedData struct {
	AQI  flexibleIndex `json:"aqi"`
	City struct {
		Name string    `json:"name"`
		URL  string    `json:"url"`
		Geo  []float64 `json:"geo"`
	} `json:"city"`
}

type boundsStation struct {
	Lat     *float64      `json:"lat"`
	Lon     *float64      `json:"lon"`
	UID     int           `json:"uid"`
	AQI     flexibleIndex `json:"aqi"`
	Station struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"station"`
}

// Feed returns the current station for a city identifier, which may be a name
// ("london"), a region path ("jakarta/central") or a station id ("@1437").
//
// A nil station with a nil error means the provider has nothing usable for the
// identifier: the station is unknown or reports no numeric index.
func (c *Client) Feed(ctx context.Context, cityID string) (*airquality.Station, error) {
	cityID = strings.TrimSpace(cityID)
	if c.token == "" {
		return nil, provider.Missing(ProviderName, "token")
	}
	if cityID == "" {
		return nil, provider.Missing(ProviderName, "city identifier")
	}

	reqURL := fmt.Sprintf("%s/feed/%s/?%s", c.baseURL, feedPath(cityID), url.Values{"token": {c.token}}.Encode())
	env, err := c.get(ctx, reqURL, FeedTimeout)
	if err != nil {
		return nil, err
	}

	switch env.Status {
	case "ok":
	case "error":
		message := dataMessage(env.Data)
		if message == messageUnknownStation {
			return nil, nil
		}
		return nil, rejection(message)
	default:
		return nil, nil
	}

	var data feedData
	if err := provider.Decode(ProviderName, env.Data, &data); err != nil {
		return nil, err
	}
	if !data.AQI.Valid {
		return nil, nil
	}

	station := &airquality.Station{
		CityID:    cityID,
		Name:      data.City.Name,
		Index:     data.AQI.Value,
		SourceURL: data.City.URL,
	}
	if station.Name == "" {
		station.Name = cityID
	}
	if len(data.City.Geo) == 2 {
		lat, lon := data.City.Geo[0], data.City.Geo[1]
		station.Lat, station.Lon = &lat, &lon
	}
	return station, nil
}

// feedPath escapes each segment of a city identifier, keeping the "/" of
// region paths such as "jakarta/central".
func feedPath(cityID string) string {
	segments := strings.Split(cityID, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// Nearby returns up to limit stations around a point, worst first, excluding
// the station that sits on the point itself. Stations reported without
// coordinates are kept.
func (c *Client) Nearby(ctx context.Context, lat, lon, radius float64, limit int) ([]airquality.Station, error) {
	stations, err := c.search(ctx, airquality.BoxAround(lat, lon, radius), false, false, NearbyTimeout)
	if err != nil {
		return nil, err
	}
	stations = airquality.ExcludeNear(stations, lat, lon, airquality.SelfEpsilon)
	return airquality.RankStations(stations, limit), nil
}

// Bounds returns every station with a valid index and coordinates inside box,
// across all monitoring networks, worst first.
func (c *Client) Bounds(ctx context.Context, box airquality.BoundingBox) ([]airquality.Station, error) {
	stations, err := c.search(ctx, box, true, true, MapTimeout)
	if err != nil {
		return nil, err
	}
	return airquality.RankStations(stations, 0), nil
}

// search queries map/bounds. With needCoords, stations reported without
// coordinates are dropped.
func (c *Client) search(ctx context.Context, box airquality.BoundingBox, allNetworks, needCoords bool, timeout time.Duration) ([]airquality.Station, error) {
	if c.token == "" {
		return nil, provider.Missing(ProviderName, "token")
	}

	params := url.Values{
		"latlng": {fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", box.MinLat, box.MinLon, box.MaxLat, box.MaxLon)},
		"token":  {c.token},
	}
	if allNetworks {
		params.Set("networks", "all")
	}

	env, err := c.get(ctx, c.baseURL+"/map/bounds/?"+params.Encode(), timeout)
	if err != nil {
		return nil, err
	}
	if env.Status != "ok" {
		return nil, rejection(dataMessage(env.Data))
	}

	var raw []boundsStation
	if err := provider.Decode(ProviderName, env.Data, &raw); err != nil {
		return nil, err
	}

	stations := make([]airquality.Station, 0, len(raw))
	for _, s := range raw {
		// "-" and "" mark stations without a current reading.
		if !s.AQI.Valid {
			continue
		}
		if needCoords && (s.Lat == nil || s.Lon == nil) {
			continue
		}
		name := s.Station.Name
		if name == "" {
			name = "Unknown Station"
		}
		stations = append(stations, airquality.Station{
			Name:      name,
			Index:     s.AQI.Value,
			Lat:       s.Lat,
			Lon:       s.Lon,
			SourceURL: s.Station.URL,
		})
	}
	return stations, nil
}

func (c *Client) get(ctx context.Context, reqURL string, timeout time.Duration) (*envelope, error) {
	resp, err := provider.Get(ctx, c.httpClient, ProviderName, reqURL, timeout)
	if err != nil {
		return nil, err
	}

	var env envelope
	if decodeErr := json.Unmarshal(resp.Body, &env); decodeErr != nil {
		if !provider.IsSuccess(resp.StatusCode) {
			return nil, provider.StatusError(ProviderName, resp.StatusCode, "")
		}
		return nil, provider.Errorf(ProviderName, provider.UnexpectedShape, "decode response: %v", decodeErr)
	}
	if !provider.IsSuccess(resp.StatusCode) {
		return nil, provider.StatusError(ProviderName, resp.StatusCode, dataMessage(env.Data))
	}
	return &env, nil
}

func dataMessage(data json.RawMessage) string {
	var message string
	if err := json.Unmarshal(data, &message); err == nil && message != "" {
		return message
	}
	return "unknown WAQI error"
}

func rejection(message string) error {
	if message == messageInvalidKey {
		return provider.Errorf(ProviderName, provider.Unauthorized, "%s", message)
	}
	return provider.Errorf(ProviderName, provider.ProviderRejected, "%s", message)
}
