package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// EventStore persists events, tiers and participants.
type EventStore interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	CreateTier(ctx context.Context, t *model.TicketTier) error
	GetTier(ctx context.Context, id string) (*model.TicketTier, error)
	ListTiers(ctx context.Context, eventID string) ([]model.TicketTier, error)
	CreateParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, eventID, participantID string) (*model.Participant, error)
}

// RegistrationStore persists registrations with their payment.
type RegistrationStore interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	GetTier(ctx context.Context, id string) (*model.TicketTier, error)
	CreateRegistration(ctx context.Context, reg *model.Registration, p *model.Participant, pay *model.Payment, entry model.HistoryEntry) error
	TransitionRegistration(ctx context.Context, id string, to model.RegistrationStatus, actor string, at time.Time) (*model.Registration, bool, error)
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
}

// PaymentStore persists payment status and its history.
type PaymentStore interface {
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	UpdatePaymentStatus(ctx context.Context, id string, to model.PaymentStatus, actor string, at time.Time) (*model.Payment, bool, error)
	ListPaymentHistory(ctx context.Context, paymentID string) ([]model.PaymentHistory, error)
}

// AttendanceStore persists attendance records.
type AttendanceStore interface {
	GetParticipant(ctx context.Context, eventID, participantID string) (*model.Participant, error)
	UpsertAttendance(ctx context.Context, a model.Attendance, actor string, at time.Time) (*model.Attendance, error)
	GetAttendance(ctx context.Context, eventID, participantID string) (*model.Attendance, error)
}

// SurveyStore persists surveys and their responses.
type SurveyStore interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	CreateSurvey(ctx context.Context, sv *model.Survey) error
	GetSurvey(ctx context.Context, eventID, surveyID string) (*model.Survey, error)
	HasSurveyResponse(ctx context.Context, surveyID, participantID string) (bool, error)
	InsertSurveyResponse(ctx context.Context, r *model.SurveyResponse, entry model.HistoryEntry) error
	ListSurveyResponses(ctx context.Context, surveyID string) ([]model.SurveyResponse, error)
}

// HistoryStore reads the audit log.
type HistoryStore interface {
	ListHistory(ctx context.Context, entityType model.EntityType, entityID string) ([]model.HistoryEntry, error)
}

// Store is everything the engine needs from persistence. Both the
// Postgres and the SQLite stores implement it.
type Store interface {
	EventStore
	RegistrationStore
	PaymentStore
	AttendanceStore
	SurveyStore
	HistoryStore

	ReserveUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) error
	ReleaseUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) (bool, error)
	OrphanedUnits(ctx context.Context, issuedBefore time.Time, limit int) ([]model.TicketUnit, error)
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	Ping(ctx context.Context) error
}
