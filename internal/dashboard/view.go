package dashboard

import (
	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/weather"
)

// MapZoom is the initial zoom of the world map around the location.
const MapZoom = 5

// View is everything the presentation layer renders, derived from a snapshot.
// Derivations tolerate pending and failed slots.
type View struct {
	ID       string    `json:"id"`
	State    State     `json:"state"`
	Version  uint64    `json:"version"`
	Location *Location `json:"location,omitempty"`

	Category       airquality.Category       `json:"category"`
	Gauge          airquality.Gauge          `json:"gauge"`
	Recommendation airquality.Recommendation `json:"recommendation"`
	Pollutant      string                    `json:"dominantPollutant,omitempty"`
	WeatherIconURL string                    `json:"weatherIconUrl,omitempty"`
	AnalyticalNote string                    `json:"analyticalNote"`
	RankingWarning string                    `json:"rankingWarning,omitempty"`
	Map            MapView                   `json:"map"`

	Slots Slots `json:"slots"`
}

// MapView positions the world map.
type MapView struct {
	CenterLat   *float64 `json:"centerLat,omitempty"`
	CenterLon   *float64 `json:"centerLon,omitempty"`
	Zoom        int      `json:"zoom"`
	MapboxToken string   `json:"mapboxToken,omitempty"`
}

// BuildView derives the dashboard view from a snapshot.
func BuildView(snap Snapshot) View {
	view := View{
		ID:       snap.ID,
		State:    snap.State,
		Version:  snap.Version,
		Location: snap.Location,
		Slots:    snap.Slots,
		Map:      MapView{Zoom: MapZoom, MapboxToken: snap.MapboxToken},
	}

	var index *int
	if reading, ok := snap.Slots.AQI.Value(); ok {
		index = reading.Index
		if reading.DominantPollutant != nil {
			view.Pollutant = reading.DominantPollutant.DisplayName()
		}
	}

	view.Category = airquality.Classify(index)
	view.Gauge = airquality.NewGauge(index)
	view.Recommendation = airquality.RecommendationFor(view.Category)

	var current *weather.Reading
	if reading, ok := snap.Slots.Weather.Value(); ok {
		current = &reading
		view.WeatherIconURL = reading.IconURL()
	}
	view.AnalyticalNote = AnalyticalNote(index, current)

	if r, ok := snap.Slots.Ranking.Value(); ok {
		view.RankingWarning = r.Warning
	}

	if coords, ok := snap.Slots.Location.Value(); ok {
		lat, lon := coords.Lat, coords.Lon
		view.Map.CenterLat = &lat
		view.Map.CenterLon = &lon
	}

	return view
}

// SlotErrors lists the failed slots by name.
func (s Slots) SlotErrors() map[string]*provider.Error {
	out := make(map[string]*provider.Error)
	add := func(name string, err *provider.Error) {
		if err != nil {
			out[name] = err
		}
	}
	add(SlotLocation, s.Location.Err())
	add(SlotAQI, s.AQI.Err())
	add(SlotWeather, s.Weather.Err())
	add(SlotHistory, s.History.Err())
	add(SlotNearby, s.Nearby.Err())
	add(SlotForecast, s.Forecast.Err())
	add(SlotMap, s.Map.Err())
	add(SlotRanking, s.Ranking.Err())
	return out
}
