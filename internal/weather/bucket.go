package weather

import (
	"sort"
	"time"
)

// MaxForecastDays is how many days BucketDaily emits by default.
const MaxForecastDays = 6

// NoCondition is shown for a day without any described sample.
const NoCondition = "N/A"

// Icons from samples in this UTC hour range represent the day.
const (
	middayStartHour = 11
	middayEndHour   = 14
)

type dayAccumulator struct {
	min, max   *float64
	conditions []string
	counts     map[string]int
	middayIcon string
	firstIcon  string
}

// BucketDaily groups samples by UTC date and returns at most maxDays
// summaries in ascending date order. A maxDays of zero or less means
// MaxForecastDays.
//
// The dominant condition is the most frequent description, ties going to the
// one seen first. The icon is the last one observed between 11:00 and 14:00
// UTC, falling back to the first icon of the day.
func BucketDaily(samples []Sample, maxDays int) []DailySummary {
	if maxDays <= 0 {
		maxDays = MaxForecastDays
	}

	days := make(map[string]*dayAccumulator)
	for _, s := range samples {
		t := s.Time.UTC()
		date := t.Format(time.DateOnly)

		acc, ok := days[date]
		if !ok {
			acc = &dayAccumulator{counts: make(map[string]int)}
			days[date] = acc
		}

		if s.Temperature != nil {
			v := *s.Temperature
			if acc.min == nil || v < *acc.min {
				lo := v
				acc.min = &lo
			}
			if acc.max == nil || v > *acc.max {
				hi := v
				acc.max = &hi
			}
		}

		if s.Description != "" {
			if acc.counts[s.Description] == 0 {
				acc.conditions = append(acc.conditions, s.Description)
			}
			acc.counts[s.Description]++
		}

		if s.Icon != "" {
			if acc.firstIcon == "" {
				acc.firstIcon = s.Icon
			}
			if h := t.Hour(); h >= middayStartHour && h <= middayEndHour {
				acc.middayIcon = s.Icon
			}
		}
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	if len(dates) > maxDays {
		dates = dates[:maxDays]
	}

	out := make([]DailySummary, 0, len(dates))
	for _, date := range dates {
		acc := days[date]
		summary := DailySummary{
			Date:              date,
			MaxTemp:           acc.max,
			MinTemp:           acc.min,
			DominantCondition: NoCondition,
			Icon:              acc.middayIcon,
		}
		if summary.Icon == "" {
			summary.Icon = acc.firstIcon
		}
		if dominant := acc.dominant(); dominant != "" {
			summary.DominantCondition = Capitalize(dominant)
		}
		out = append(out, summary)
	}
	return out
}

func (a *dayAccumulator) dominant() string {
	best, bestCount := "", 0
	for _, c := range a.conditions {
		if a.counts[c] > bestCount {
			best, bestCount = c, a.counts[c]
		}
	}
	return best
}
