package airquality

import "strconv"

// UnavailableAngle is where the needle rests when there is no reading.
const UnavailableAngle = 180.0

// GaugeStep is one colored band on the gauge dial.
type GaugeStep struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Color string `json:"color"`
}

// Gauge is the display-ready state of the AQI needle gauge.
type Gauge struct {
	// Angle is in degrees: 180 points left (index 0), 0 points right (index MaxIndex).
	Angle        float64     `json:"angle"`
	Available    bool        `json:"available"`
	Title        string      `json:"title"`
	DisplayValue string      `json:"displayValue"`
	Color        string      `json:"color"`
	Category     Category    `json:"category"`
	Steps        []GaugeStep `json:"steps"`
}

// NeedleAngle maps an index linearly onto [180°, 0°], clamping to [0, MaxIndex].
func NeedleAngle(index int) float64 {
	clamped := index
	if clamped < 0 {
		clamped = 0
	}
	if clamped > MaxIndex {
		clamped = MaxIndex
	}
	return 180 - float64(clamped)/MaxIndex*180
}

// NewGauge builds the gauge for a reading. A nil or negative index yields the
// unavailable presentation: needle at rest, gray, "N/A".
func NewGauge(index *int) Gauge {
	g := Gauge{Steps: GaugeSteps()}
	if index == nil || *index < 0 {
		g.Angle = UnavailableAngle
		g.Title = "AQI Unavailable"
		g.DisplayValue = "N/A"
		g.Color = UnknownColor
		g.Category = Unknown
		return g
	}

	category := Classify(index)
	g.Angle = NeedleAngle(*index)
	g.Available = true
	g.Title = category.Label
	g.DisplayValue = strconv.Itoa(*index)
	g.Color = category.Color
	g.Category = category
	return g
}

// GaugeSteps returns the dial bands, one per category.
func GaugeSteps() []GaugeStep {
	steps := make([]GaugeStep, 0, len(categoriesBySeverity))
	for _, c := range categoriesBySeverity {
		steps = append(steps, GaugeStep{From: c.Min, To: c.Max, Color: c.Color})
	}
	return steps
}
