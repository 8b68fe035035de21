package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/geocode"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/saferoute"
	"github.com/saferoute/saferoute/pkg/geo"
)

// RouteHandler handles safety-aware route planning endpoints.
type RouteHandler struct {
	planner *saferoute.Planner
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(planner *saferoute.Planner) *RouteHandler {
	return &RouteHandler{planner: planner}
}

// ComputeSafeRoute handles POST /v1/routes/safest.
func (h *RouteHandler) ComputeSafeRoute(w http.ResponseWriter, r *http.Request) {
	var req models.SafeRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	origin, fieldErr := toEndpoint(req.Origin, "origin")
	if fieldErr != nil {
		response.BadRequest(w, r, "invalid route endpoint", []models.FieldError{*fieldErr})
		return
	}
	destination, fieldErr := toEndpoint(req.Destination, "destination")
	if fieldErr != nil {
		response.BadRequest(w, r, "invalid route endpoint", []models.FieldError{*fieldErr})
		return
	}

	avoidThreats := true
	if req.AvoidThreats != nil {
		avoidThreats = *req.AvoidThreats
	}

	avoid := make([]routing.AvoidFeature, 0, len(req.Avoid))
	for _, a := range req.Avoid {
		avoid = append(avoid, routing.AvoidFeature(a))
	}

	result, err := h.planner.Plan(r.Context(), saferoute.PlanRequest{
		Origin:          origin,
		Destination:     destination,
		Profile:         routing.RouteProfile(req.Profile),
		Avoid:           avoid,
		AvoidThreats:    avoidThreats,
		MaxAlternatives: req.MaxAlternatives,
	})
	if err != nil {
		writePlanError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toSafeRouteResponse(result))
}

// writePlanError maps planner failures to problem responses. A geocoding miss
// is the caller's address being wrong; a missing route is the network's.
func writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, saferoute.ErrLocationNotFound):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, saferoute.ErrSuperseded):
		response.Conflict(w, r, "request superseded by a newer route plan")
	case errors.Is(err, routing.ErrNoRouteFound):
		response.NotFound(w, r, "no route found between the given points")
	case errors.Is(err, routing.ErrInvalidCoordinates):
		response.BadRequest(w, r, "invalid coordinates", nil)
	case errors.Is(err, routing.ErrRateLimitExceeded):
		response.TooManyRequests(w, r, "routing quota exceeded")
	case errors.Is(err, routing.ErrProviderUnavailable),
		errors.Is(err, geocode.ErrProviderUnavailable):
		response.ServiceUnavailable(w, r, "routing temporarily unavailable")
	case errors.Is(err, r.Context().Err()):
		// Client went away; nothing useful to write.
	default:
		response.InternalError(w, r, "failed to compute route")
	}
}

func toEndpoint(ep models.RouteEndpoint, field string) (saferoute.Endpoint, *models.FieldError) {
	if ep.Location == nil && ep.Query == "" {
		return saferoute.Endpoint{}, &models.FieldError{
			Field:   field,
			Message: "either location or query is required",
		}
	}

	out := saferoute.Endpoint{Query: ep.Query}
	if ep.Location != nil {
		out.Coordinate = &geo.Coordinate{Lat: ep.Location.Lat, Lon: ep.Location.Lon}
	}
	return out, nil
}

func toSafeRouteResponse(result *saferoute.PlanResult) models.SafeRouteResponse {
	resp := models.SafeRouteResponse{
		Recommended:  toScoredRouteModel(result.Recommended),
		Alternatives: make([]models.ScoredRoute, 0, len(result.Routes)),
		Scored:       result.Scored,
		Origin:       models.Point{Lat: result.Origin.Lat, Lon: result.Origin.Lon},
		Destination:  models.Point{Lat: result.Destination.Lat, Lon: result.Destination.Lon},
	}

	for i, sr := range result.Routes {
		if i == 0 {
			continue // first entry is the recommendation
		}
		resp.Alternatives = append(resp.Alternatives, toScoredRouteModel(sr))
	}

	for _, t := range result.AvoidedThreats {
		resp.AvoidedThreats = append(resp.AvoidedThreats, models.AvoidedThreat{
			ID:          t.ID,
			Name:        t.Name,
			ThreatLevel: string(t.Level),
			Category:    string(t.Category),
			DistanceKm:  t.DistanceKm,
		})
	}
	return resp
}

func toScoredRouteModel(sr saferoute.ScoredRoute) models.ScoredRoute {
	return models.ScoredRoute{
		Geometry:        sr.Route.GeometryPolyline,
		DistanceMeters:  sr.Route.DistanceMeters,
		DurationSeconds: sr.Route.DurationSeconds,
		Summary:         sr.Route.Summary,
		ThreatScore:     sr.ThreatScore,
		TotalScore:      sr.TotalScore,
	}
}
