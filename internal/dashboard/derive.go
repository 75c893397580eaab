package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/air13x/air13x/internal/airquality"
	"github.com/air13x/air13x/internal/provider"
	"github.com/air13x/air13x/internal/weather"
)

// NotAvailable fills table cells without data.
const NotAvailable = "N/A"

// Analytical note thresholds.
const (
	strongWind    = 5.0
	lightWind     = 1.5
	highHumidity  = 75.0
	highIndex     = 150
	goodIndex     = 50
	maxNotes      = 2
	fallbackNote  = "General weather conditions observed."
	noteSeparator = " | "
)

// ForecastRow is one day of the combined weather and pollution forecast.
type ForecastRow struct {
	Date          string   `json:"date"`
	DisplayDate   string   `json:"displayDate"`
	Condition     string   `json:"condition"`
	IconURL       string   `json:"iconUrl,omitempty"`
	MaxTemp       *float64 `json:"maxTemp"`
	MinTemp       *float64 `json:"minTemp"`
	MaxTempText   string   `json:"maxTempText"`
	MinTempText   string   `json:"minTempText"`
	MaxLevel      *int     `json:"maxLevel"`
	MaxLevelLabel string   `json:"maxLevelLabel"`
}

// CombineForecast attaches each day's worst pollution level to the weather
// summary for the same date. Days come from the weather forecast; pollution
// dates without a weather day are ignored.
func CombineForecast(days []weather.DailySummary, levels []airquality.DailyLevel) []ForecastRow {
	byDate := make(map[string]int, len(levels))
	for _, l := range levels {
		byDate[l.Date] = l.Level
	}

	rows := make([]ForecastRow, 0, len(days))
	for _, d := range days {
		row := ForecastRow{
			Date:          d.Date,
			DisplayDate:   displayDate(d.Date),
			Condition:     d.DominantCondition,
			IconURL:       weather.IconURL(d.Icon),
			MaxTemp:       d.MaxTemp,
			MinTemp:       d.MinTemp,
			MaxTempText:   formatTemp(d.MaxTemp),
			MinTempText:   formatTemp(d.MinTemp),
			MaxLevelLabel: NotAvailable,
		}
		if level, ok := byDate[d.Date]; ok {
			l := level
			row.MaxLevel = &l
			row.MaxLevelLabel = airquality.ForecastLabel(level)
		}
		rows = append(rows, row)
	}
	return rows
}

// ForecastError merges the failures of the two forecast fetches into one,
// reading "Weather: <msg> | AQI: <msg>" with "OK" for the part that worked.
// It returns nil when both succeeded.
func ForecastError(weatherErr, pollutionErr error) *provider.Error {
	if weatherErr == nil && pollutionErr == nil {
		return nil
	}

	kind := provider.KindOf(weatherErr)
	if weatherErr == nil {
		kind = provider.KindOf(pollutionErr)
	}
	if kind == provider.KindUnknown {
		kind = provider.ProviderRejected
	}

	return provider.Errorf("", kind, "Weather: %s | AQI: %s", partMessage(weatherErr), partMessage(pollutionErr))
}

// AnalyticalNote returns up to two short observations linking the weather to
// the air quality, or a generic line when nothing stands out.
func AnalyticalNote(index *int, w *weather.Reading) string {
	var notes []string

	if w != nil {
		if w.WindSpeed != nil {
			switch {
			case *w.WindSpeed > strongWind:
				notes = append(notes, "Strong winds may help disperse pollutants.")
			case *w.WindSpeed < lightWind:
				notes = append(notes, "Light winds might lead to pollutant accumulation.")
			}
		}
		if w.Description != nil {
			desc := strings.ToLower(*w.Description)
			if strings.Contains(desc, "rain") || strings.Contains(desc, "drizzle") || strings.Contains(desc, "shower") {
				notes = append(notes, "Precipitation can help wash pollutants from the air.")
			}
		}
		if w.Humidity != nil && *w.Humidity > highHumidity {
			notes = append(notes, "High humidity can sometimes contribute to haze.")
		}
	}

	if index != nil {
		switch {
		case *index > highIndex:
			notes = append(notes, "Current AQI levels are high, consider health recommendations.")
		case *index < goodIndex:
			notes = append(notes, "Air quality appears good.")
		}
	}

	if len(notes) == 0 {
		return fallbackNote
	}
	if len(notes) > maxNotes {
		notes = notes[:maxNotes]
	}
	return strings.Join(notes, noteSeparator)
}

func partMessage(err error) string {
	if err == nil {
		return "OK"
	}
	var perr *provider.Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}

func formatTemp(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.1f", *v)
}

func displayDate(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Format("Mon, Jan 02")
}
