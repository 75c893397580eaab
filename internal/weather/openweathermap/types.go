package openweathermap

import "encoding/json"

// OpenWeatherMap API response structures. Pointers mark fields the API may omit.

type errorResponse struct {
	Cod     json.Number `json:"cod"`
	Message string      `json:"message"`
}

type geocodeResult struct {
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Country string   `json:"country"`
	State   string   `json:"state"`
}

type currentWeatherResponse struct {
	// cod is a number on success and a string on some failures.
	Cod     json.Number `json:"cod"`
	Message string      `json:"message"`
	Weather []struct {
		Main        string  `json:"main"`
		Description *string `json:"description"`
		Icon        *string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Pressure  *float64 `json:"pressure"`
		Humidity  *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Country *string `json:"country"`
	} `json:"sys"`
	Dt   *int64  `json:"dt"`
	Name *string `json:"name"`
}

type forecastResponse struct {
	List *[]struct {
		Dt   *int64 `json:"dt"`
		Main struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

type pollutionResponse struct {
	List *[]struct {
		Dt   *int64 `json:"dt"`
		Main struct {
			AQI *int `json:"aqi"`
		} `json:"main"`
		Components struct {
			PM25 *float64 `json:"pm2_5"`
		} `json:"components"`
	} `json:"list"`
}
