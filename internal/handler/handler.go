// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/service"
)

// ActorHeader names the caller recorded on history entries.
const ActorHeader = "X-Actor"

// IdempotencyKeyHeader carries a client-chosen key for safe register retries.
const IdempotencyKeyHeader = "Idempotency-Key"

// soldOutMessage is shown to participants when a tier has no units left.
const soldOutMessage = "チケットが売り切れです"

// Services bundles the service layer the handlers call into.
type Services struct {
	Events        *service.EventService
	Registrations *service.RegistrationService
	Payments      *service.PaymentService
	Attendance    *service.AttendanceService
	Surveys       *service.SurveyService
	History       *service.HistoryService
}

// Handler holds all HTTP handlers for the registration API.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// New constructs a Handler.
func New(svc Services, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(ActorHeader)); a != "" {
		return a
	}
	return service.ActorAnonymous
}

// writeServiceError maps a service error to a status code and body.
// Unclassified failures are logged and reported without internal detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.ClassOf(err) {
	case apperr.ClassValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case apperr.ClassNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case apperr.ClassConflict:
		switch {
		case errors.Is(err, apperr.ErrSoldOut):
			writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "sold out", Message: soldOutMessage})
		case errors.Is(err, apperr.ErrDuplicate):
			writeError(w, http.StatusConflict, "already exists")
		case errors.Is(err, apperr.ErrInProgress):
			writeError(w, http.StatusConflict, "a request with this idempotency key is in progress")
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Ready returns the GET /ready handler. It answers 503 listing the failed
// dependencies when any check fails.
func Ready(checks map[string]CheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		writeJSON(w, code, status)
	}
}
