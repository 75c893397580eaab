package airquality

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MaxIndex is the top of the US AQI scale. Larger readings classify as Hazardous.
const MaxIndex = 500

// UnknownColor is the neutral gray used for missing or unparsable readings.
const UnknownColor = "#808080"

// Category is one severity band of the US AQI scale.
type Category struct {
	Label string `json:"label"`
	Color string `json:"color"`
	// Min and Max bound the band inclusively. Both are -1 for Unknown.
	Min int `json:"min"`
	Max int `json:"max"`
}

// Known reports whether c is one of the six defined bands.
func (c Category) Known() bool {
	return c.Min >= 0
}

// Bands of the US AQI scale, ordered by severity. They partition [0, MaxIndex].
var (
	Good               = Category{Label: "Good", Color: "#5EC445", Min: 0, Max: 50}
	Moderate           = Category{Label: "Moderate", Color: "#F5E769", Min: 51, Max: 100}
	UnhealthySensitive = Category{Label: "Unhealthy for Sensitive Groups", Color: "#FE9B57", Min: 101, Max: 150}
	Unhealthy          = Category{Label: "Unhealthy", Color: "#FE6A69", Min: 151, Max: 200}
	VeryUnhealthy      = Category{Label: "Very Unhealthy", Color: "#A97ABC", Min: 201, Max: 300}
	Hazardous          = Category{Label: "Hazardous", Color: "#A06A7B", Min: 301, Max: MaxIndex}
	Unknown            = Category{Label: "Unknown", Color: UnknownColor, Min: -1, Max: -1}
)

var categoriesBySeverity = []Category{Good, Moderate, UnhealthySensitive, Unhealthy, VeryUnhealthy, Hazardous}

// Categories returns the six bands in ascending order of severity.
func Categories() []Category {
	out := make([]Category, len(categoriesBySeverity))
	copy(out, categoriesBySeverity)
	return out
}

// Classify maps an index to its band. A nil or negative index is Unknown;
// anything above MaxIndex is Hazardous.
func Classify(index *int) Category {
	if index == nil || *index < 0 {
		return Unknown
	}
	for _, c := range categoriesBySeverity {
		if *index <= c.Max {
			return c
		}
	}
	return Hazardous
}

// ClassifyInt is Classify for a value known to be present.
func ClassifyInt(index int) Category {
	return Classify(&index)
}

// ClassifyValue classifies a loosely typed reading as found in provider payloads:
// integers, floats, numeric strings and json.Number. Everything else is Unknown.
func ClassifyValue(v any) Category {
	index, ok := ParseIndex(v)
	if !ok {
		return Unknown
	}
	return ClassifyInt(index)
}

// ParseIndex converts a loosely typed reading to an integer index.
// Fractional values are truncated. NaN, infinities and non-numeric input are rejected.
func ParseIndex(v any) (int, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		return x, true
	case int64:
		return int(x), true
	case *int:
		if x == nil {
			return 0, false
		}
		return *x, true
	case float64:
		return floatIndex(x)
	case float32:
		return floatIndex(float64(x))
	case json.Number:
		return ParseIndex(string(x))
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatIndex(f)
	default:
		return 0, false
	}
}

func floatIndex(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// forecastLabels is the OpenWeatherMap air pollution scale. It is not an AQI
// and must never be fed to Classify.
var forecastLabels = map[int]string{
	1: "Good",
	2: "Fair",
	3: "Moderate",
	4: "Poor",
	5: "Very Poor",
}

// ForecastLabel maps the 1..5 pollution forecast scale to its label.
func ForecastLabel(level int) string {
	if label, ok := forecastLabels[level]; ok {
		return label
	}
	return Unknown.Label
}
