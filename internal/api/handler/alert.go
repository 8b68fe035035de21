package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saferoute/saferoute/internal/alert"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/notify"
	"github.com/saferoute/saferoute/internal/tracker"
	"github.com/saferoute/saferoute/pkg/geo"
)

// AlertHandler handles SOS, mark-safe, alert history and location fix
// endpoints.
type AlertHandler struct {
	dispatcher *alert.Dispatcher
	tracker    *tracker.Tracker
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(dispatcher *alert.Dispatcher, trk *tracker.Tracker) *AlertHandler {
	return &AlertHandler{dispatcher: dispatcher, tracker: trk}
}

// TriggerSOS handles POST /v1/sos.
func (h *AlertHandler) TriggerSOS(w http.ResponseWriter, r *http.Request) {
	// An empty body is valid: the server falls back to the last known
	// position.
	var req models.SOSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	result, err := h.dispatcher.TriggerSOS(r.Context(), GetUserID(r.Context()), toCoordinatePtr(req.Location))
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toDispatchResponse(result))
}

// MarkSafe handles POST /v1/sos/safe.
func (h *AlertHandler) MarkSafe(w http.ResponseWriter, r *http.Request) {
	var req models.MarkSafeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	result, err := h.dispatcher.MarkSafe(r.Context(), GetUserID(r.Context()), toCoordinatePtr(req.Location))
	if err != nil {
		writeDispatchError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toDispatchResponse(result))
}

// ListAlerts handles GET /v1/alerts.
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.dispatcher.Alerts(r.Context(), GetUserID(r.Context()))
	if err != nil {
		response.InternalError(w, r, "failed to load alert history")
		return
	}

	resp := models.AlertListResponse{Alerts: make([]models.SafetyAlert, 0, len(alerts))}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, toAlertModel(a))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// MarkAlertRead handles POST /v1/alerts/{alertId}/read.
func (h *AlertHandler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.dispatcher.MarkRead(r.Context(), chi.URLParam(r, "alertId"))
	if err != nil {
		response.InternalError(w, r, "failed to mark alert read")
		return
	}
	if !updated {
		response.NotFound(w, r, "alert not found")
		return
	}
	response.NoContent(w, r)
}

// PostLocationFix handles POST /v1/location/fix. The fix is checked against
// all active geofences and any resulting transitions are returned, with
// danger-zone entries fanning out to emergency contacts via the dispatcher.
func (h *AlertHandler) PostLocationFix(w http.ResponseWriter, r *http.Request) {
	var req models.LocationFix
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	userID := GetUserID(r.Context())
	fix := tracker.Fix{
		UserID:     userID,
		Coordinate: geo.Coordinate{Lat: req.Location.Lat, Lon: req.Location.Lon},
		AccuracyM:  req.AccuracyM,
		RecordedAt: time.Now(),
	}
	if req.RecordedAt != nil {
		fix.RecordedAt = time.Time(*req.RecordedAt)
	}

	events, err := h.tracker.ProcessFix(r.Context(), fix)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrInvalidFix):
			response.BadRequest(w, r, "invalid location fix", nil)
		case errors.Is(err, tracker.ErrFixInFlight):
			response.TooManyRequests(w, r, "previous location fix still processing")
		default:
			response.InternalError(w, r, "failed to process location fix")
		}
		return
	}

	resp := models.LocationFixResponse{
		Events: make([]models.TransitionEvent, 0, len(events)),
		Inside: h.tracker.Inside(userID),
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, models.TransitionEvent{
			GeofenceID:   ev.Fence.ID,
			GeofenceName: ev.Fence.Name,
			GeofenceType: string(ev.Fence.Type),
			Event:        string(ev.Type),
			Severity:     string(ev.Severity),
		})
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// writeDispatchError maps dispatcher failures to problem responses.
func writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var locErr *alert.LocationError
	switch {
	case errors.Is(err, alert.ErrNoContacts):
		response.BadRequest(w, r, "no emergency contacts registered", nil)
	case errors.As(err, &locErr):
		response.BadRequest(w, r, "location unavailable: "+string(locErr.Kind), nil)
	case errors.Is(err, alert.ErrDeliveryFailed),
		errors.Is(err, notify.ErrGatewayUnavailable):
		response.ServiceUnavailable(w, r, "alert delivery failed, please retry")
	default:
		response.InternalError(w, r, "failed to dispatch alert")
	}
}

func toCoordinatePtr(p *models.Point) *geo.Coordinate {
	if p == nil {
		return nil
	}
	return &geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

func toDispatchResponse(result *alert.DispatchResult) models.DispatchResponse {
	resp := models.DispatchResponse{
		AlertID:  result.Alert.ID,
		Status:   string(result.Status),
		Notified: result.Alert.Notified,
		Partial:  result.Partial,
	}
	for _, d := range result.Failed {
		resp.Failed = append(resp.Failed, models.FailedDelivery{
			ContactID: d.ContactID,
			Channel:   string(d.Channel),
			Error:     d.Error,
		})
	}
	return resp
}

func toAlertModel(a *alert.SafetyAlert) models.SafetyAlert {
	m := models.SafetyAlert{
		ID:         a.ID,
		Type:       string(a.Type),
		GeofenceID: a.GeofenceID,
		Detail:     a.Detail,
		Notified:   a.Notified,
		Partial:    a.Partial,
		Read:       a.Read,
		CreatedAt:  models.Timestamp(a.CreatedAt),
	}
	if a.Location != nil {
		m.Location = &models.Point{Lat: a.Location.Lat, Lon: a.Location.Lon}
	}
	return m
}
