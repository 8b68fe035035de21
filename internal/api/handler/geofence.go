package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/geofence"
	"github.com/saferoute/saferoute/pkg/geo"
)

// GeofenceHandler handles geofence CRUD endpoints.
type GeofenceHandler struct {
	fences *geofence.Service
}

// NewGeofenceHandler creates a new GeofenceHandler.
func NewGeofenceHandler(fences *geofence.Service) *GeofenceHandler {
	return &GeofenceHandler{fences: fences}
}

// ListGeofences handles GET /v1/geofences.
func (h *GeofenceHandler) ListGeofences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fences, err := h.fences.Query(r.Context(), q.Get("createdBy"), geofence.Type(q.Get("type")))
	if err != nil {
		response.InternalError(w, r, "failed to query geofences")
		return
	}

	resp := models.GeofenceListResponse{Geofences: make([]models.Geofence, 0, len(fences))}
	for _, f := range fences {
		resp.Geofences = append(resp.Geofences, toGeofenceModel(f))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// GetGeofence handles GET /v1/geofences/{geofenceId}.
func (h *GeofenceHandler) GetGeofence(w http.ResponseWriter, r *http.Request) {
	f, err := h.fences.Get(r.Context(), chi.URLParam(r, "geofenceId"))
	if err != nil {
		if errors.Is(err, geofence.ErrGeofenceNotFound) {
			response.NotFound(w, r, "geofence not found")
			return
		}
		response.InternalError(w, r, "failed to load geofence")
		return
	}
	response.JSON(w, r, http.StatusOK, toGeofenceModel(f))
}

// CreateGeofence handles POST /v1/geofences.
func (h *GeofenceHandler) CreateGeofence(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGeofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = GetUserID(r.Context())
	}

	f, err := h.fences.Create(r.Context(), geofence.CreateInput{
		Name:     req.Name,
		Type:     geofence.Type(req.Type),
		Points:   toCoordinates(req.Points),
		RadiusKm: req.RadiusKm,
		Metadata: geofence.Metadata{
			Description: req.Description,
			CreatedBy:   createdBy,
			Color:       req.Color,
			Icon:        req.Icon,
		},
	})
	if err != nil {
		var vErr *geofence.ValidationError
		if errors.As(err, &vErr) {
			response.BadRequest(w, r, "invalid geofence", []models.FieldError{
				{Field: vErr.Field, Message: vErr.Message},
			})
			return
		}
		response.InternalError(w, r, "failed to create geofence")
		return
	}

	response.Created(w, r, "/v1/geofences/"+f.ID, toGeofenceModel(f))
}

// UpdateGeofence handles PATCH /v1/geofences/{geofenceId}.
func (h *GeofenceHandler) UpdateGeofence(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateGeofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	input := geofence.UpdateInput{
		Name:        req.Name,
		RadiusKm:    req.RadiusKm,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
	}
	if req.Type != nil {
		t := geofence.Type(*req.Type)
		input.Type = &t
	}
	if len(req.Points) > 0 {
		input.Points = toCoordinates(req.Points)
	}

	f, err := h.fences.Update(r.Context(), chi.URLParam(r, "geofenceId"), input)
	if err != nil {
		var vErr *geofence.ValidationError
		switch {
		case errors.Is(err, geofence.ErrGeofenceNotFound):
			response.NotFound(w, r, "geofence not found")
		case errors.As(err, &vErr):
			response.BadRequest(w, r, "invalid geofence update", []models.FieldError{
				{Field: vErr.Field, Message: vErr.Message},
			})
		default:
			response.InternalError(w, r, "failed to update geofence")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, toGeofenceModel(f))
}

// DeleteGeofence handles DELETE /v1/geofences/{geofenceId}.
func (h *GeofenceHandler) DeleteGeofence(w http.ResponseWriter, r *http.Request) {
	if err := h.fences.Delete(r.Context(), chi.URLParam(r, "geofenceId")); err != nil {
		if errors.Is(err, geofence.ErrGeofenceNotFound) {
			response.NotFound(w, r, "geofence not found")
			return
		}
		response.InternalError(w, r, "failed to delete geofence")
		return
	}
	response.NoContent(w, r)
}

func toCoordinates(points []models.Point) []geo.Coordinate {
	coords := make([]geo.Coordinate, 0, len(points))
	for _, p := range points {
		coords = append(coords, geo.Coordinate{Lat: p.Lat, Lon: p.Lon})
	}
	return coords
}

func toGeofenceModel(f *geofence.Fence) models.Geofence {
	points := make([]models.Point, 0, len(f.Points))
	for _, p := range f.Points {
		points = append(points, models.Point{Lat: p.Lat, Lon: p.Lon})
	}

	m := models.Geofence{
		ID:          f.ID,
		Name:        f.Name,
		Type:        string(f.Type),
		Points:      points,
		RadiusKm:    f.RadiusKm,
		Description: f.Metadata.Description,
		CreatedBy:   f.Metadata.CreatedBy,
		Color:       f.Metadata.Color,
		Icon:        f.Metadata.Icon,
		CreatedAt:   models.Timestamp(f.CreatedAt),
	}
	if !f.Metadata.UpdatedAt.IsZero() {
		updatedAt := models.Timestamp(f.Metadata.UpdatedAt)
		m.UpdatedAt = &updatedAt
	}
	return m
}
