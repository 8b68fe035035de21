// Package handler provides HTTP handlers for the SafeRoute API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/threat"
	"github.com/saferoute/saferoute/pkg/geo"
)

// ThreatHandler handles threat location endpoints.
type ThreatHandler struct {
	threats *threat.Service
}

// NewThreatHandler creates a new ThreatHandler.
func NewThreatHandler(threats *threat.Service) *ThreatHandler {
	return &ThreatHandler{threats: threats}
}

// ListThreats handles GET /v1/threats.
func (h *ThreatHandler) ListThreats(w http.ResponseWriter, r *http.Request) {
	filters, ok := parseThreatFilters(w, r)
	if !ok {
		return
	}

	locations, err := h.threats.Query(r.Context(), filters)
	if err != nil {
		response.InternalError(w, r, "failed to query threat locations")
		return
	}

	resp := models.ThreatListResponse{Threats: make([]models.ThreatLocation, 0, len(locations))}
	for _, loc := range locations {
		resp.Threats = append(resp.Threats, toThreatModel(loc))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// CreateThreat handles POST /v1/threats.
func (h *ThreatHandler) CreateThreat(w http.ResponseWriter, r *http.Request) {
	var req models.CreateThreatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	timeOfDay := make([]threat.TimeOfDay, 0, len(req.TimeOfDay))
	for _, t := range req.TimeOfDay {
		timeOfDay = append(timeOfDay, threat.TimeOfDay(t))
	}

	loc, err := h.threats.Create(r.Context(), threat.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Coordinate:  geo.Coordinate{Lat: req.Location.Lat, Lon: req.Location.Lon},
		Level:       threat.Level(req.ThreatLevel),
		Category:    threat.Category(req.Category),
		TimeOfDay:   timeOfDay,
	})
	if err != nil {
		var vErr *threat.ValidationError
		if errors.As(err, &vErr) {
			response.BadRequest(w, r, "invalid threat location", []models.FieldError{
				{Field: vErr.Field, Message: vErr.Message},
			})
			return
		}
		response.InternalError(w, r, "failed to create threat location")
		return
	}

	response.Created(w, r, "/v1/threats/"+loc.ID, toThreatModel(loc))
}

// ReportThreat handles POST /v1/threats/{threatId}/report.
func (h *ThreatHandler) ReportThreat(w http.ResponseWriter, r *http.Request) {
	applied, err := h.threats.Report(r.Context(), chi.URLParam(r, "threatId"))
	if err != nil {
		response.InternalError(w, r, "failed to report threat location")
		return
	}
	response.JSON(w, r, http.StatusOK, models.ThreatActionResponse{Applied: applied})
}

// VoteThreat handles POST /v1/threats/{threatId}/vote.
func (h *ThreatHandler) VoteThreat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Up bool `json:"up"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	applied, err := h.threats.Vote(r.Context(), chi.URLParam(r, "threatId"), req.Up)
	if err != nil {
		response.InternalError(w, r, "failed to vote on threat location")
		return
	}
	response.JSON(w, r, http.StatusOK, models.ThreatActionResponse{Applied: applied})
}

// VerifyThreat handles POST /v1/threats/{threatId}/verify.
func (h *ThreatHandler) VerifyThreat(w http.ResponseWriter, r *http.Request) {
	applied, err := h.threats.Verify(r.Context(), chi.URLParam(r, "threatId"), GetUserID(r.Context()))
	if err != nil {
		response.InternalError(w, r, "failed to verify threat location")
		return
	}
	response.JSON(w, r, http.StatusOK, models.ThreatActionResponse{Applied: applied})
}

// DeleteThreat handles DELETE /v1/threats/{threatId}. Moderation only.
func (h *ThreatHandler) DeleteThreat(w http.ResponseWriter, r *http.Request) {
	if err := h.threats.Delete(r.Context(), chi.URLParam(r, "threatId")); err != nil {
		response.InternalError(w, r, "failed to delete threat location")
		return
	}
	response.NoContent(w, r)
}

func parseThreatFilters(w http.ResponseWriter, r *http.Request) (threat.Filters, bool) {
	q := r.URL.Query()
	filters := threat.Filters{
		Level:     threat.Level(q.Get("level")),
		Category:  threat.Category(q.Get("category")),
		TimeOfDay: threat.TimeOfDay(q.Get("timeOfDay")),
	}

	if v := q.Get("verified"); v != "" {
		verified, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
				{Field: "verified", Message: "must be a boolean"},
			})
			return filters, false
		}
		filters.Verified = &verified
	}

	if v := q.Get("minVotes"); v != "" {
		minVotes, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
				{Field: "minVotes", Message: "must be an integer"},
			})
			return filters, false
		}
		filters.MinVotes = &minVotes
	}

	if v := q.Get("minReports"); v != "" {
		minReports, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
				{Field: "minReports", Message: "must be an integer"},
			})
			return filters, false
		}
		filters.MinReports = &minReports
	}

	lat, lon, radius := q.Get("lat"), q.Get("lon"), q.Get("radiusKm")
	if lat != "" && lon != "" && radius != "" {
		latF, errLat := strconv.ParseFloat(lat, 64)
		lonF, errLon := strconv.ParseFloat(lon, 64)
		radiusF, errRadius := strconv.ParseFloat(radius, 64)
		if errLat != nil || errLon != nil || errRadius != nil {
			response.BadRequest(w, r, "invalid spatial query", nil)
			return filters, false
		}
		filters.Center = &geo.Coordinate{Lat: latF, Lon: lonF}
		filters.RadiusKm = radiusF
	}

	return filters, true
}

func toThreatModel(loc *threat.Location) models.ThreatLocation {
	timeOfDay := make([]string, 0, len(loc.TimeOfDay))
	for _, t := range loc.TimeOfDay {
		timeOfDay = append(timeOfDay, string(t))
	}

	m := models.ThreatLocation{
		ID:             loc.ID,
		Name:           loc.Name,
		Description:    loc.Description,
		Location:       models.Point{Lat: loc.Coordinate.Lat, Lon: loc.Coordinate.Lon},
		ThreatLevel:    string(loc.Level),
		Category:       string(loc.Category),
		TimeOfDay:      timeOfDay,
		Verified:       loc.Verified,
		VerifiedBy:     loc.VerifiedBy,
		Votes:          loc.Votes,
		ReportCount:    loc.ReportCount,
		ReportedAt:     models.Timestamp(loc.ReportedAt),
		LastReportDate: models.Timestamp(loc.LastReportDate),
	}
	if !loc.VerifiedAt.IsZero() {
		verifiedAt := models.Timestamp(loc.VerifiedAt)
		m.VerifiedAt = &verifiedAt
	}
	return m
}
