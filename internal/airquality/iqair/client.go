// Package iqair provides a client for the IQAir AirVisual API: the
// country/state/city directory and the current US AQI of a city.
package iqair

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the AirVisual API.
	DefaultBaseURL = "http://api.airvisual.com/v2"

	// ProviderName identifies this provider.
	ProviderName = "iqair"

	// DefaultTimeout bounds every AirVisual request.
	DefaultTimeout = 15 * time.Second
)

// Failure codes returned in data.message when status is "fail".
const (
	codeNoStates        = "no_states_found"
	codeNoCities        = "no_cities_found"
	codeIncorrectAPIKey = "incorrect_api_key"
	codeAPIKeyExpired   = "api_key_expired"
	codePermission      = "permission_denied"
)

// ClientConfig holds configuration for the IQAir client.
type ClientConfig struct {
	// APIKey is the AirVisual key. Calls fail with MissingInput when empty.
	APIKey string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient provider.HTTPDoer

	// Timeout for individual API requests (default: DefaultTimeout).
	Timeout time.Duration
}

// Client is an IQAir AirVisual API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient provider.HTTPDoer
	timeout    time.Duration
}

// NewClient creates a new IQAir client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		})
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// WithAPIKey returns a copy of the client that authenticates with key.
// The transport is shared.
func (c *Client) WithAPIKey(key string) *Client {
	clone := *c
	clone.apiKey = strings.TrimSpace(key)
	return &clone
}

// API response types.

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type failureData struct {
	Message string `json:"message"`
}

type countryData struct {
	Country string `json:"country"`
}

type stateData struct {
	State string `json:"state"`
}

type cityData struct {
	City string `json:"city"`
}

type cityDetail struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Current *struct {
		Pollution *struct {
			Timestamp string  `json:"ts"`
			AQIUS     *int    `json:"aqius"`
			MainUS    *string `json:"mainus"`
		} `json:"pollution"`
	} `json:"current"`
}

// Countries lists every country the provider covers, sorted.
func (c *Client) Countries(ctx context.Context) ([]string, error) {
	if c.apiKey == "" {
		return nil, provider.Missing(ProviderName, "api key")
	}

	var items []countryData
	if err := c.get(ctx, "countries", url.Values{}, &items); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Country)
	}
	return sortedNames(names), nil
}

// States lists the states of a country, sorted. A country without states
// yields an empty list, not an error.
func (c *Client) States(ctx context.Context, country string) ([]string, error) {
	if c.apiKey == "" {
		return nil, provider.Missing(ProviderName, "api key")
	}
	if strings.TrimSpace(country) == "" {
		return nil, provider.Missing(ProviderName, "country")
	}

	var items []stateData
	err := c.get(ctx, "states", url.Values{"country": {country}}, &items)
	if isCode(err, codeNoStates) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.State)
	}
	return sortedNames(names), nil
}

// Cities lists the cities of a state, sorted. A state without cities
// yields an empty list, not an error.
func (c *Client) Cities(ctx context.Context, country, state string) ([]string, error) {
	if c.apiKey == "" {
		return nil, provider.Missing(ProviderName, "api key")
	}
	if strings.TrimSpace(country) == "" {
		return nil, provider.Missing(ProviderName, "country")
	}
	if strings.TrimSpace(state) == "" {
		return nil, provider.Missing(ProviderName, "state")
	}

	var items []cityData
	err := c.get(ctx, "cities", url.Values{"country": {country}, "state": {state}}, &items)
	if isCode(err, codeNoCities) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.City)
	}
	return sortedNames(names), nil
}

// CurrentCity fetches the current US AQI reading for a city.
// Fields the provider omits stay nil.
func (c *Client) CurrentCity(ctx context.Context, city, state, country string) (airquality.Reading, error) {
	reading := airquality.Reading{Provider: ProviderName}

	if c.apiKey == "" {
		return reading, provider.Missing(ProviderName, "api key")
	}
	for _, p := range [][2]string{{"city", city}, {"state", state}, {"country", country}} {
		if strings.TrimSpace(p[1]) == "" {
			return reading, provider.Missing(ProviderName, p[0])
		}
	}

	var detail cityDetail
	params := url.Values{"city": {city}, "state": {state}, "country": {country}}
	if err := c.get(ctx, "city", params, &detail); err != nil {
		return reading, err
	}

	if detail.Current == nil || detail.Current.Pollution == nil {
		return reading, nil
	}
	pollution := detail.Current.Pollution

	reading.Index = pollution.AQIUS
	if pollution.MainUS != nil && *pollution.MainUS != "" {
		p := airquality.Pollutant(*pollution.MainUS)
		reading.DominantPollutant = &p
	}
	if ts, err := time.Parse(time.RFC3339, pollution.Timestamp); err == nil {
		ts = ts.UTC()
		reading.ObservedAt = &ts
	}
	return reading, nil
}

// get calls an endpoint and decodes data into out. Provider failures carry the
// AirVisual failure code as their message.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	resp, err := provider.Get(ctx, c.httpClient, ProviderName, reqURL, c.timeout)
	if err != nil {
		return err
	}

	var env envelope
	if decodeErr := json.Unmarshal(resp.Body, &env); decodeErr != nil || env.Status == "" {
		if !provider.IsSuccess(resp.StatusCode) {
			return provider.StatusError(ProviderName, resp.StatusCode, "")
		}
		return provider.Errorf(ProviderName, provider.UnexpectedShape, "response has no status field")
	}

	if env.Status != "success" {
		var failure failureData
		_ = json.Unmarshal(env.Data, &failure)
		return failureError(resp.StatusCode, failure.Message)
	}
	if !provider.IsSuccess(resp.StatusCode) {
		return provider.StatusError(ProviderName, resp.StatusCode, "")
	}

	return provider.Decode(ProviderName, env.Data, out)
}

func failureError(status int, code string) error {
	if code == "" {
		code = "unknown provider error"
	}
	switch {
	case code == codeIncorrectAPIKey || code == codeAPIKeyExpired || code == codePermission:
		return provider.Errorf(ProviderName, provider.Unauthorized, "%s", code)
	case status == http.StatusUnauthorized || (status >= 400 && status < 500):
		return provider.StatusError(ProviderName, status, code)
	default:
		return provider.Errorf(ProviderName, provider.ProviderRejected, "%s", code)
	}
}

func isCode(err error, code string) bool {
	var perr *provider.Error
	return errors.As(err, &perr) && perr.Message == code
}

func sortedNames(names []string) []string {
	sort.Strings(names)
	return names
}
