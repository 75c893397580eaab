package models

import "github.com/air13x/air13x/internal/dashboard"

// LocationList is a directory listing.
type LocationList struct {
	Items []string `json:"items"`
	Count int      `json:"count"`
}

// NewLocationList wraps names, never returning a null list.
func NewLocationList(names []string) LocationList {
	if names == nil {
		names = []string{}
	}
	return LocationList{Items: names, Count: len(names)}
}

// FetchRequest is the body of POST /v1/sessions/{sessionId}/fetch. Keys are
// optional; any left empty fall back to the operator configuration.
type FetchRequest struct {
	City    string                `json:"city"`
	State   string                `json:"state"`
	Country string                `json:"country"`
	Keys    dashboard.Credentials `json:"keys"`
}

// ToDashboard converts the body to a trigger request.
func (r FetchRequest) ToDashboard() dashboard.Request {
	return dashboard.Request{
		Location: dashboard.Location{City: r.City, State: r.State, Country: r.Country},
		Keys:     r.Keys,
	}
}

// FetchAccepted acknowledges a started fetch.
type FetchAccepted struct {
	SessionID string          `json:"sessionId"`
	Version   uint64          `json:"version"`
	State     dashboard.State `json:"state"`
}

// FieldErrors converts a validation failure to problem field errors.
func FieldErrors(err *dashboard.ValidationError) []FieldError {
	out := make([]FieldError, 0, len(err.Fields))
	for _, f := range err.Fields {
		out = append(out, FieldError{Field: f, Message: "is required", Code: "REQUIRED"})
	}
	return out
}
