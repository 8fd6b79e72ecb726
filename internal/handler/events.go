package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// CreateEvent handles POST /events
// Creates a new event together with its ticket tiers.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.Events.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
// Returns a single event with its tiers.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.Events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// AddTier handles POST /events/{id}/tiers
func (h *Handler) AddTier(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTierRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tier, err := h.svc.Events.AddTier(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tier)
}

// ListTiers handles GET /events/{id}/tiers
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.svc.Events.ListTiers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if tiers == nil {
		tiers = []model.TicketTier{}
	}

	writeJSON(w, http.StatusOK, tiers)
}

// GetTier handles GET /events/{id}/tiers/{tierId}
// Remaining capacity may lag by the availability cache TTL.
func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	tier, err := h.svc.Events.GetTier(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tierId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tier)
}

// AddParticipant handles POST /events/{id}/participants
// Adds a walk-in participant without a ticket.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req model.CreateParticipantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := h.svc.Events.AddParticipant(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}
