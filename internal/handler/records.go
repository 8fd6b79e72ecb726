package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// SetAttendance handles PUT /events/{id}/attendance/{participantId}
func (h *Handler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	att, err := h.svc.Attendance.Set(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "participantId"), req.Status, req.Note, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.DataResponse{Success: true, Data: att})
}

// GetAttendance handles GET /events/{id}/attendance/{participantId}
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	att, err := h.svc.Attendance.Get(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "participantId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, att)
}

// UpdatePayment handles PUT /events/{id}/payments/{paymentId}
// Store failures are reported with the store's message so operators can
// tell a lost connection from a constraint failure.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req model.UpdatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pay, err := h.svc.Payments.UpdateStatus(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "paymentId"), req.Status, actor(r))
	if err != nil {
		switch apperr.ClassOf(err) {
		case apperr.ClassTransient, apperr.ClassUnknown:
			h.logger.ErrorContext(r.Context(), "payment update failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			h.writeServiceError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, model.DataResponse{Success: true, Data: pay})
}

// PaymentHistory handles GET /payments/{paymentId}/history
func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Payments.History(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if entries == nil {
		entries = []model.PaymentHistory{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// CreateSurvey handles POST /events/{id}/surveys
func (h *Handler) CreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSurveyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sv, err := h.svc.Surveys.CreateSurvey(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sv)
}

// SubmitSurvey handles POST /events/{id}/surveys/{surveyId}/responses
func (h *Handler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitSurveyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Surveys.Submit(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "surveyId"), req)
	if err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			writeError(w, http.StatusConflict, "already responded")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": resp.ID})
}

// SurveyResponses handles GET /events/{id}/surveys/{surveyId}/responses
func (h *Handler) SurveyResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.svc.Surveys.Responses(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "surveyId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if responses == nil {
		responses = []model.SurveyResponse{}
	}

	writeJSON(w, http.StatusOK, responses)
}

// History handles GET /history/{entityType}/{entityId}
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.History.List(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if entries == nil {
		entries = []model.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}
