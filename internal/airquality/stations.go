package airquality

import (
	"math"
	"sort"
	"strings"
	"time"
)

// SelfEpsilon is the distance in degrees under which a station is considered
// to be the queried location itself.
const SelfEpsilon = 0.01

// RankStations sorts stations by index, worst first, and keeps at most limit.
// A limit of zero or less keeps everything. Ties are ordered by name so the
// output does not depend on arrival order. The input is not modified.
func RankStations(stations []Station, limit int) []Station {
	out := make([]Station, len(stations))
	copy(out, stations)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index > out[j].Index
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CityID < out[j].CityID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ExcludeNear drops stations within epsilon degrees of (lat, lon) on both axes.
// Stations without coordinates are kept.
func ExcludeNear(stations []Station, lat, lon, epsilon float64) []Station {
	out := make([]Station, 0, len(stations))
	for _, s := range stations {
		if s.Located() && math.Abs(*s.Lat-lat) < epsilon && math.Abs(*s.Lon-lon) < epsilon {
			continue
		}
		out = append(out, s)
	}
	return out
}

// DedupeByCity keeps the first station seen for each city identifier,
// comparing identifiers case-insensitively.
func DedupeByCity(stations []Station) []Station {
	seen := make(map[string]struct{}, len(stations))
	out := make([]Station, 0, len(stations))
	for _, s := range stations {
		key := strings.ToLower(strings.TrimSpace(s.CityID))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NormalizeHistory returns the points in ascending timestamp order.
// Sorting is stable, so re-normalizing sorted input is a no-op.
func NormalizeHistory(points []HistoryPoint) []HistoryPoint {
	out := make([]HistoryPoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// DailyMaxLevels reduces hourly forecast samples to the maximum level per UTC date,
// ordered by date.
func DailyMaxLevels(samples []PollutionSample) []DailyLevel {
	maxByDate := make(map[string]int)
	for _, s := range samples {
		date := s.Timestamp.UTC().Format(time.DateOnly)
		if current, ok := maxByDate[date]; !ok || s.Level > current {
			maxByDate[date] = s.Level
		}
	}

	dates := make([]string, 0, len(maxByDate))
	for date := range maxByDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	out := make([]DailyLevel, 0, len(dates))
	for _, date := range dates {
		level := maxByDate[date]
		out = append(out, DailyLevel{Date: date, Level: level, Label: ForecastLabel(level)})
	}
	return out
}
