// Package airquality holds the provider-independent air quality records and the
// pure derivations over them: AQI classification, the needle gauge, health
// recommendations, station ranking, history and pollution forecast normalization.
package airquality

import (
	"strings"
	"time"
)

// Pollutant is a pollutant code as reported by the current-index provider.
type Pollutant string

// IQAir main pollutant codes.
const (
	PollutantPM25 Pollutant = "p2"
	PollutantPM10 Pollutant = "p1"
	PollutantO3   Pollutant = "o3"
	PollutantNO2  Pollutant = "n2"
	PollutantSO2  Pollutant = "s2"
	PollutantCO   Pollutant = "co"
)

var pollutantNames = map[Pollutant]string{
	PollutantPM25: "PM2.5",
	PollutantPM10: "PM10",
	PollutantO3:   "O3",
	PollutantNO2:  "NO2",
	PollutantSO2:  "SO2",
	PollutantCO:   "CO",
}

// DisplayName returns a human readable name, or the raw code upper-cased when unknown.
func (p Pollutant) DisplayName() string {
	if name, ok := pollutantNames[p]; ok {
		return name
	}
	return strings.ToUpper(string(p))
}

// Reading is the current air quality at a location. Any field may be absent;
// an absent index is distinct from an index of zero.
type Reading struct {
	Index             *int       `json:"index"`
	DominantPollutant *Pollutant `json:"dominantPollutant"`
	ObservedAt        *time.Time `json:"observedAt"`
	Provider          string     `json:"provider"`
}

// Category classifies the reading.
func (r Reading) Category() Category {
	return Classify(r.Index)
}

// Station is a monitoring station with a valid index. It backs the nearby list,
// the world map and the city ranking.
type Station struct {
	// CityID is the ranking identifier the station was queried with. Empty
	// for stations found by region search.
	CityID    string   `json:"cityId,omitempty"`
	Name      string   `json:"name"`
	Index     int      `json:"index"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	SourceURL string   `json:"sourceUrl,omitempty"`
}

// Located reports whether the provider gave the station's coordinates.
func (s Station) Located() bool {
	return s.Lat != nil && s.Lon != nil
}

// Category classifies the station's index.
func (s Station) Category() Category {
	return ClassifyInt(s.Index)
}

// HistoryPoint is one PM2.5 concentration sample in µg/m³.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	PM25      float64   `json:"pm25"`
}

// PollutionSample is one hourly pollution forecast value on the 1..5 scale.
type PollutionSample struct {
	Timestamp time.Time
	Level     int
}

// DailyLevel is the worst forecast level for one UTC calendar date.
type DailyLevel struct {
	Date  string `json:"date"`
	Level int    `json:"level"`
	Label string `json:"label"`
}

// BoundingBox is a rectangular coordinate window.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// BoxAround returns the window of ±delta degrees around a point, clamped to valid coordinates.
func BoxAround(lat, lon, delta float64) BoundingBox {
	return BoundingBox{
		MinLat: clamp(lat-delta, -90, 90),
		MinLon: clamp(lon-delta, -180, 180),
		MaxLat: clamp(lat+delta, -90, 90),
		MaxLon: clamp(lon+delta, -180, 180),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
