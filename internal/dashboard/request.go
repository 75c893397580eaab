package dashboard

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Location is the place a dashboard is built for.
type Location struct {
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// Credentials are the provider keys a fetch uses.
type Credentials struct {
	IQAir       string `json:"iqairApiKey" validate:"required"`
	OpenWeather string `json:"openWeatherApiKey" validate:"required"`
	WAQI        string `json:"waqiToken" validate:"required"`
	Mapbox      string `json:"mapboxToken" validate:"required"`
}

// Merge fills empty fields of c from fallback.
func (c Credentials) Merge(fallback Credentials) Credentials {
	pick := func(v, d string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return strings.TrimSpace(d)
	}
	return Credentials{
		IQAir:       pick(c.IQAir, fallback.IQAir),
		OpenWeather: pick(c.OpenWeather, fallback.OpenWeather),
		WAQI:        pick(c.WAQI, fallback.WAQI),
		Mapbox:      pick(c.Mapbox, fallback.Mapbox),
	}
}

// Request is a fetch trigger: where to look and, optionally, which keys to use
// instead of the operator-configured ones.
type Request struct {
	Location
	Keys Credentials `json:"keys"`
}

// ValidationError names every missing field of a trigger.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Validator checks trigger requests.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that reports fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate trims the request in place and returns a *ValidationError when
// anything required is blank.
func (v *Validator) Validate(req *Request) error {
	req.City = strings.TrimSpace(req.City)
	req.State = strings.TrimSpace(req.State)
	req.Country = strings.TrimSpace(req.Country)

	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldPath(fe.Namespace()))
	}
	sort.Strings(fields)
	return &ValidationError{Fields: fields}
}

// fieldPath drops the root struct name and the embedded Location segment,
// so "Request.Location.city" becomes "city" and "Request.keys.waqiToken"
// becomes "keys.waqiToken".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}
	out := parts[:0]
	for _, p := range parts {
		if p == "Location" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}
