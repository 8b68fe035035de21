package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// Pinger reports storage reachability. Implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles health, readiness and system status endpoints.
type OpsHandler struct {
	db       Pinger
	registry *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. db may be nil when the service runs
// on in-memory stores.
func NewOpsHandler(db Pinger, registry *resilience.Registry) *OpsHandler {
	if registry == nil {
		registry = resilience.GlobalRegistry
	}
	return &OpsHandler{db: db, registry: registry}
}

// Health handles GET /health. Liveness only; always OK while the process
// serves requests.
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	})
}

// Ready handles GET /ready. Readiness requires the database to answer.
func (h *OpsHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
				Status: models.HealthStatusFail,
				Time:   models.Timestamp(time.Now()),
				Details: map[string]interface{}{
					"database": err.Error(),
				},
			})
			return
		}
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	})
}

// Status handles GET /v1/status: subsystem checks plus per-provider circuit
// breaker health.
func (h *OpsHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	status.Subsystems = append(status.Subsystems, h.databaseStatus(r.Context()))

	for _, ph := range h.registry.GetAllHealth() {
		status.Providers = append(status.Providers, toProviderStatus(ph))
	}

	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
		} else if s.Status == models.HealthStatusDegraded && status.Status == models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}

	code := http.StatusOK
	if status.Status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, status)
}

func (h *OpsHandler) databaseStatus(ctx context.Context) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK}
	if h.db == nil {
		detail := "in-memory store"
		s.Detail = &detail
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		s.Status = models.HealthStatusFail
		detail := err.Error()
		s.Detail = &detail
	}
	return s
}

func toProviderStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	p := models.ProviderStatus{
		Provider: ph.Name,
		Status:   models.HealthStatusOK,
	}
	switch {
	case ph.IsUnhealthy():
		p.Status = models.HealthStatusFail
	case ph.IsDegraded():
		p.Status = models.HealthStatusDegraded
	}
	if ph.LastSuccessAt != nil {
		t := models.Timestamp(*ph.LastSuccessAt)
		p.LastSuccessAt = &t
	}
	if ph.LastFailureAt != nil {
		t := models.Timestamp(*ph.LastFailureAt)
		p.LastFailureAt = &t
	}
	if ph.LastError != "" {
		msg := ph.LastError
		p.Message = &msg
	}
	return p
}
