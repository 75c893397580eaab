// Package handler provides the HTTP handlers of the air13x API.
package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/air13x/air13x/internal/api/models"
	"github.com/air13x/air13x/internal/api/response"
	"github.com/air13x/air13x/internal/provider/resilience"
)

// HealthSource reports the health of every provider client.
type HealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// SessionCounter reports how many sessions are live.
type SessionCounter interface {
	Len() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	health    HealthSource
	sessions  SessionCounter
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. health and sessions may be nil.
func NewOpsHandler(version, buildTime string, health HealthSource, sessions SessionCounter) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		health:    health,
		sessions:  sessions,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service stays ready while a
// provider circuit is open, since sessions report that provider's slots as
// failed, but the answer is DEGRADED.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}

	if open := h.openCircuits(); len(open) > 0 {
		health.Status = models.HealthStatusDegraded
		health.Details = map[string]interface{}{
			"openCircuits": open,
		}
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - per provider circuit state.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}
	if h.sessions != nil {
		status.Sessions = h.sessions.Len()
	}

	if h.health != nil {
		for _, ph := range h.health.GetAllHealth() {
			ps := providerStatus(ph)
			status.Providers = append(status.Providers, ps)
			status.Status = worst(status.Status, ps.Status)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) openCircuits() []string {
	if h.health == nil {
		return nil
	}
	var open []string
	for _, ph := range h.health.GetAllHealth() {
		if ph.IsUnhealthy() {
			open = append(open, ph.Name)
		}
	}
	return open
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:      ph.Name,
		Status:        models.HealthStatusOK,
		CircuitState:  strings.ReplaceAll(ph.CircuitState.String(), "-", "_"),
		Requests:      ph.Counts.Requests,
		Failures:      ph.Counts.ConsecutiveFailures,
		LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
		LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
	}

	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}

	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

// worst returns the more severe of two statuses. A failed provider only
// degrades the service as a whole.
func worst(current, provider models.HealthStatus) models.HealthStatus {
	if provider == models.HealthStatusOK || current == models.HealthStatusDegraded {
		return current
	}
	return models.HealthStatusDegraded
}
