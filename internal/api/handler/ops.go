// Package handler provides HTTP handlers for the FleetRoute API.
package handler

import (
	"net/http"
	"time"

	"github.com/fleetroute/fleetroute/internal/api/models"
	"github.com/fleetroute/fleetroute/internal/api/response"
	"github.com/fleetroute/fleetroute/internal/provider/resilience"
	"github.com/fleetroute/fleetroute/internal/routing/openrouteservice"
)

// Degradation flags reported by SystemStatus.
const (
	FlagNoRoutingProvider = "no_routing_provider"
	FlagSyntheticMatrix   = "synthetic_matrix"
	FlagEstimatedGeometry = "estimated_geometry"
)

// flagWhenDown maps an endpoint to the degradation its open circuit causes.
var flagWhenDown = map[string]string{
	openrouteservice.MatrixClientName:     FlagSyntheticMatrix,
	openrouteservice.DirectionsClientName: FlagEstimatedGeometry,
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. registry may be nil when no
// routing provider is configured.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Version:   h.version,
		BuildTime: h.buildTime,
	})
}

// ReadinessCheck handles GET /v1/ops/ready. Nothing has to warm up and every
// provider has a fallback, so the service is ready as soon as it serves.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	for _, ep := range h.snapshot() {
		health.Providers = append(health.Providers, ep.Name)
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status. A down provider makes the
// service DEGRADED, never FAIL: requests still succeed on estimates.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.OpsStatus{
		Status:           models.HealthStatusOK,
		Time:             models.Timestamp(time.Now()),
		Providers:        []models.ProviderStatus{},
		DegradationFlags: []string{},
	}

	endpoints := h.snapshot()
	if len(endpoints) == 0 {
		status.Status = models.HealthStatusDegraded
		status.DegradationFlags = append(status.DegradationFlags, FlagNoRoutingProvider)
	}

	for _, ep := range endpoints {
		ps := toProviderStatus(ep)
		status.Providers = append(status.Providers, ps)
		if ps.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
		if flag, ok := flagWhenDown[ep.Name]; ok && ep.Down() {
			status.DegradationFlags = append(status.DegradationFlags, flag)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) snapshot() []resilience.Health {
	if h.registry == nil {
		return nil
	}
	return h.registry.Snapshot()
}

func toProviderStatus(ep resilience.Health) models.ProviderStatus {
	ps := models.ProviderStatus{
		Name:          ep.Name,
		Status:        models.HealthStatusOK,
		Circuit:       ep.CircuitState.String(),
		Successes:     ep.Successes,
		Failures:      ep.Failures,
		LastSuccessAt: timestampPtr(ep.LastSuccessAt),
		LastFailureAt: timestampPtr(ep.LastFailureAt),
		LastError:     ep.LastError,
	}
	switch {
	case ep.Down():
		ps.Status = models.HealthStatusFail
	case ep.Recovering():
		ps.Status = models.HealthStatusDegraded
	}
	return ps
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
