// Package weather holds the weather domain model and the derivations over
// provider samples: daily forecast bucketing and the condition text helpers.
package weather

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// IconBaseURL is where OpenWeatherMap serves condition icons.
const IconBaseURL = "https://openweathermap.org/img/wn/"

// Reading is the current weather at a place. Every field is optional; a
// provider that omits a value leaves it nil.
type Reading struct {
	Temperature *float64   `json:"temperature,omitempty"`
	FeelsLike   *float64   `json:"feelsLike,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	PressureHPa *float64   `json:"pressureHpa,omitempty"`
	WindSpeed   *float64   `json:"windSpeed,omitempty"`
	Description *string    `json:"description,omitempty"`
	IconCode    *string    `json:"iconCode,omitempty"`
	ObservedAt  *time.Time `json:"observedAt,omitempty"`
	PlaceName   *string    `json:"placeName,omitempty"`
	CountryCode *string    `json:"countryCode,omitempty"`
}

// IconURL returns the icon image URL, or "" when the reading has no icon.
func (r Reading) IconURL() string {
	if r.IconCode == nil {
		return ""
	}
	return IconURL(*r.IconCode)
}

// Sample is one 3-hourly forecast entry.
type Sample struct {
	Time        time.Time
	Temperature *float64
	Description string
	Icon        string
}

// DailySummary is the forecast for one UTC date. Extrema are nil when no
// sample of the day carried a temperature.
type DailySummary struct {
	Date              string   `json:"date"`
	MaxTemp           *float64 `json:"maxTemp"`
	MinTemp           *float64 `json:"minTemp"`
	DominantCondition string   `json:"dominantCondition"`
	Icon              string   `json:"icon,omitempty"`
}

// Coordinates is a resolved location.
type Coordinates struct {
	Lat         float64 `json:"latitude"`
	Lon         float64 `json:"longitude"`
	Name        string  `json:"resolvedName,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
}

// IconURL builds the image URL for an icon code.
func IconURL(code string) string {
	if code == "" {
		return ""
	}
	return IconBaseURL + code + ".png"
}

// Capitalize upper-cases the first letter and lower-cases the rest,
// so "scattered Clouds" becomes "Scattered clouds".
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
