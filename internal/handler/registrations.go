package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/service"
)

// Register handles POST /events/{id}/register
// Reserves a unit of the requested tier and records a confirmed
// registration. Retries carrying the same Idempotency-Key replay the first
// result.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	reg, err := h.svc.Registrations.Register(r.Context(), service.RegisterInput{
		EventID:        chi.URLParam(r, "id"),
		TierID:         req.TicketID,
		Participant:    req.Participant,
		Actor:          actor(r),
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.RegisterResponse{
		Success:        true,
		RegistrationID: reg.ID,
		Registration:   reg,
	})
}

// CancelRegistration handles POST /registrations/{id}/cancel
// Cancelling twice returns the already cancelled registration.
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Registrations.Cancel(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.DataResponse{Success: true, Data: reg})
}

// GetRegistration handles GET /registrations/{id}
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Registrations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns all registrations for a given event.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.Registrations.ListByEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}
