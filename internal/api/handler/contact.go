package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/contact"
)

// ContactHandler handles emergency contact endpoints.
type ContactHandler struct {
	contacts *contact.Service
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(contacts *contact.Service) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// ListContacts handles GET /v1/contacts.
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.ListByUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		response.InternalError(w, r, "failed to load emergency contacts")
		return
	}

	resp := models.ContactListResponse{Contacts: make([]models.EmergencyContact, 0, len(contacts))}
	for _, c := range contacts {
		resp.Contacts = append(resp.Contacts, toContactModel(c))
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// CreateContact handles POST /v1/contacts.
func (h *ContactHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req models.CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	c, err := h.contacts.Create(r.Context(), contact.CreateInput{
		UserID:       GetUserID(r.Context()),
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
		Priority:     req.Priority,
	})
	if err != nil {
		var vErr *contact.ValidationError
		if errors.As(err, &vErr) {
			response.BadRequest(w, r, "invalid emergency contact", []models.FieldError{
				{Field: vErr.Field, Message: vErr.Message},
			})
			return
		}
		response.InternalError(w, r, "failed to create emergency contact")
		return
	}

	response.Created(w, r, "/v1/contacts/"+c.ID, toContactModel(c))
}

// DeleteContact handles DELETE /v1/contacts/{contactId}. Only the owner's
// contacts are visible for deletion.
func (h *ContactHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactId")
	userID := GetUserID(r.Context())

	owned, err := h.contacts.ListByUser(r.Context(), userID)
	if err != nil {
		response.InternalError(w, r, "failed to load emergency contacts")
		return
	}

	var found bool
	for _, c := range owned {
		if c.ID == contactID {
			found = true
			break
		}
	}
	if !found {
		response.NotFound(w, r, "contact not found")
		return
	}

	if err := h.contacts.Delete(r.Context(), contactID); err != nil {
		if errors.Is(err, contact.ErrContactNotFound) {
			response.NotFound(w, r, "contact not found")
			return
		}
		response.InternalError(w, r, "failed to delete emergency contact")
		return
	}
	response.NoContent(w, r)
}

func toContactModel(c *contact.Contact) models.EmergencyContact {
	return models.EmergencyContact{
		ID:           c.ID,
		Name:         c.Name,
		Phone:        c.Phone,
		Relationship: c.Relationship,
		Priority:     c.Priority,
		CreatedAt:    models.Timestamp(c.CreatedAt),
	}
}
