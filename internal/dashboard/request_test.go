package dashboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/air13x/air13x/internal/dashboard"
)

func fullKeys() dashboard.Credentials {
	return dashboard.Credentials{
		IQAir:       "iq-key",
		OpenWeather: "owm-key",
		WAQI:        "waqi-token",
		Mapbox:      "pk.mapbox",
	}
}

func TestValidator_Valid(t *testing.T) {
	v := dashboard.NewValidator()
	req := dashboard.Request{
		Location: dashboard.Location{City: "  Lima ", State: "Lima", Country: "Peru "},
		Keys:     fullKeys(),
	}

	require.NoError(t, v.Validate(&req))
	assert.Equal(t, "Lima", req.City)
	assert.Equal(t, "Peru", req.Country)
}

func TestValidator_ReportsMissingFields(t *testing.T) {
	v := dashboard.NewValidator()
	req := dashboard.Request{
		Location: dashboard.Location{City: "   ", Country: "Peru"},
		Keys:     dashboard.Credentials{IQAir: "iq-key", OpenWeather: "owm-key"},
	}

	err := v.Validate(&req)
	require.Error(t, err)

	var verr *dashboard.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"city", "keys.mapboxToken", "keys.waqiToken", "state"}, verr.Fields)
	assert.Contains(t, verr.Error(), "city")
}

func TestCredentials_Merge(t *testing.T) {
	fallback := fullKeys()
	got := dashboard.Credentials{WAQI: " own-token ", Mapbox: "  "}.Merge(fallback)

	assert.Equal(t, "iq-key", got.IQAir)
	assert.Equal(t, "owm-key", got.OpenWeather)
	assert.Equal(t, "own-token", got.WAQI)
	assert.Equal(t, "pk.mapbox", got.Mapbox)
}
