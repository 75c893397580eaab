package airquality

// Recommendation is the health guidance shown next to the current reading.
type Recommendation struct {
	Short   string `json:"short"`
	Details string `json:"details"`
}

var recommendations = map[string]Recommendation{
	Good.Label: {
		Short:   "Air quality is satisfactory.",
		Details: "It's a great day to be active outside.",
	},
	Moderate.Label: {
		Short:   "Acceptable air quality.",
		Details: "Unusually sensitive individuals: Consider reducing prolonged or heavy exertion outdoors.",
	},
	UnhealthySensitive.Label: {
		Short: "Sensitive groups may experience health effects.",
		Details: "Sensitive groups (heart/lung disease, older adults, children): Reduce prolonged/heavy exertion outdoors. Take more breaks.\n\n" +
			"General public: Okay outside, watch for symptoms.",
	},
	Unhealthy.Label: {
		Short: "Some may experience health effects; sensitive groups more serious effects.",
		Details: "Sensitive groups: Avoid prolonged/heavy exertion outdoors. Move activities indoors or reschedule.\n\n" +
			"General public: Reduce prolonged/heavy exertion outdoors.",
	},
	VeryUnhealthy.Label: {
		Short: "Health alert: Increased risk for everyone.",
		Details: "Sensitive groups: Avoid all physical activity outdoors. Move activities indoors.\n\n" +
			"General public: Avoid prolonged/heavy exertion. Consider moving activities indoors.",
	},
	Hazardous.Label: {
		Short: "Health warning: Emergency conditions.",
		Details: "Everyone: Avoid all physical activity outdoors.\n\n" +
			"Sensitive groups: Remain indoors, keep activity low.",
	},
	Unknown.Label: {
		Short:   "AQI category could not be determined.",
		Details: "Health recommendations unavailable.",
	},
}

// RecommendationFor returns the guidance for a category.
func RecommendationFor(c Category) Recommendation {
	if r, ok := recommendations[c.Label]; ok {
		return r
	}
	return recommendations[Unknown.Label]
}
