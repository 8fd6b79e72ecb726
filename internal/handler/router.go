package handler

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the API router with the global middleware stack.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(h.logger))        // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Post("/tiers", h.AddTier)
			r.Get("/tiers", h.ListTiers)
			r.Get("/tiers/{tierId}", h.GetTier)
			r.Post("/participants", h.AddParticipant)
			r.Post("/register", h.Register)
			r.Get("/registrations", h.ListRegistrations)
			r.Put("/attendance/{participantId}", h.SetAttendance)
			r.Get("/attendance/{participantId}", h.GetAttendance)
			r.Put("/payments/{paymentId}", h.UpdatePayment)
			r.Post("/surveys", h.CreateSurvey)
			r.Post("/surveys/{surveyId}/responses", h.SubmitSurvey)
			r.Get("/surveys/{surveyId}/responses", h.SurveyResponses)
		})
	})

	r.Get("/registrations/{id}", h.GetRegistration)
	r.Post("/registrations/{id}/cancel", h.CancelRegistration)
	r.Get("/payments/{paymentId}/history", h.PaymentHistory)
	r.Get("/history/{entityType}/{entityId}", h.History)

	return r
}
