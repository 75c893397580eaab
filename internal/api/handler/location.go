package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/air13x/air13x/internal/api/models"
	"github.com/air13x/air13x/internal/api/response"
)

// IQAirKeyHeader lets a caller list locations with their own IQAir key
// instead of the operator's.
const IQAirKeyHeader = "X-IQAir-Key"

// LocationDirectory lists the countries, states and cities a dashboard can
// be built for.
type LocationDirectory interface {
	Countries(ctx context.Context, key string) ([]string, error)
	States(ctx context.Context, key, country string) ([]string, error)
	Cities(ctx context.Context, key, country, state string) ([]string, error)
}

// LocationHandler serves the location directory.
type LocationHandler struct {
	directory LocationDirectory
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(directory LocationDirectory) *LocationHandler {
	return &LocationHandler{directory: directory}
}

// ListCountries handles GET /v1/locations/countries.
func (h *LocationHandler) ListCountries(w http.ResponseWriter, r *http.Request) {
	names, err := h.directory.Countries(r.Context(), iqairKey(r))
	h.write(w, r, names, err)
}

// ListStates handles GET /v1/locations/countries/{country}/states.
func (h *LocationHandler) ListStates(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	names, err := h.directory.States(r.Context(), iqairKey(r), country)
	h.write(w, r, names, err)
}

// ListCities handles GET /v1/locations/countries/{country}/states/{state}/cities.
func (h *LocationHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	state := chi.URLParam(r, "state")
	names, err := h.directory.Cities(r.Context(), iqairKey(r), country, state)
	h.write(w, r, names, err)
}

// write lists names, or the provider problem for err.
func (h *LocationHandler) write(w http.ResponseWriter, r *http.Request, names []string, err error) {
	if err != nil {
		response.ProviderError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewLocationList(names))
}

func iqairKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IQAirKeyHeader))
}
