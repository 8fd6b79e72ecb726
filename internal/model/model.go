// Package model defines the core domain types for the event registration engine.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event represents an event created by an organizer. Capacity lives on its
// ticket tiers.
type Event struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	Tiers       []TicketTier `json:"tiers,omitempty"`
}

// TicketTier is a priced category of ticket with its own finite capacity.
// RemainingCapacity only changes through the inventory allocator.
type TicketTier struct {
	ID                string          `json:"id"`
	EventID           string          `json:"event_id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	TotalCapacity     int             `json:"total_capacity"`
	RemainingCapacity int             `json:"remaining_capacity"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Reserved returns the number of units currently held by registrations.
func (t *TicketTier) Reserved() int {
	return t.TotalCapacity - t.RemainingCapacity
}

// IsSoldOut returns true when no units remain.
func (t *TicketTier) IsSoldOut() bool {
	return t.RemainingCapacity <= 0
}

// UnitToken is an opaque handle for one reserved unit of a tier's capacity.
type UnitToken string

// TicketUnit is the ledger row behind a UnitToken.
type TicketUnit struct {
	Token      UnitToken  `json:"token"`
	TierID     string     `json:"tier_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// ParticipantInfo is the attendee-supplied part of a registration.
type ParticipantInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Participant is a person attached to an event, either through registration
// or added directly by an organizer (walk-ins).
type Participant struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Registration owns exactly one reserved unit of a tier until it is cancelled.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	TicketTierID  string             `json:"ticket_tier_id"`
	ParticipantID string             `json:"participant_id"`
	Participant   ParticipantInfo    `json:"participant"`
	UnitToken     UnitToken          `json:"-"`
	PaymentID     string             `json:"payment_id,omitempty"`
	Status        RegistrationStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Payment is owned 1:1 by its Registration.
type Payment struct {
	ID             string          `json:"id"`
	RegistrationID string          `json:"registration_id"`
	Amount         decimal.Decimal `json:"amount"`
	Status         PaymentStatus   `json:"status"`
	DueDate        time.Time       `json:"due_date"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PaymentHistory records one payment status change.
type PaymentHistory struct {
	ID        int64         `json:"id"`
	PaymentID string        `json:"payment_id"`
	OldStatus PaymentStatus `json:"old_status"`
	NewStatus PaymentStatus `json:"new_status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Attendance is keyed by (ParticipantID, EventID). CheckedInAt is the first
// time the participant was marked present and never moves afterwards.
type Attendance struct {
	ParticipantID string           `json:"participant_id"`
	EventID       string           `json:"event_id"`
	Status        AttendanceStatus `json:"status"`
	CheckedInAt   *time.Time       `json:"checked_in_at,omitempty"`
	Note          string           `json:"note"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Question is one survey question.
type Question struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Required bool   `json:"required"`
}

// Survey belongs to an event.
type Survey struct {
	ID        string     `json:"id"`
	EventID   string     `json:"event_id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// Answer is a participant's answer to one question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

// SurveyResponse is unique per (SurveyID, ParticipantID).
type SurveyResponse struct {
	ID            string    `json:"id"`
	SurveyID      string    `json:"survey_id"`
	ParticipantID string    `json:"participant_id"`
	Answers       []Answer  `json:"answers"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// HistoryEntry is one append-only audit record of a state transition.
// FromState is empty for the entry that creates an entity.
type HistoryEntry struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	FromState  string     `json:"from_state"`
	ToState    string     `json:"to_state"`
	Actor      string     `json:"actor"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ─── Requests and responses ──────────────────────────────────────────────────

// CreateEventRequest is the payload for creating a new event with its tiers.
type CreateEventRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Tiers       []CreateTierRequest `json:"tiers"`
}

// CreateTierRequest defines one ticket tier.
type CreateTierRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	TicketID    string          `json:"ticket_id"`
	Participant ParticipantInfo `json:"participant"`
}

// RegisterResponse is returned on a successful registration.
type RegisterResponse struct {
	Success        bool          `json:"success"`
	RegistrationID string        `json:"registration_id"`
	Registration   *Registration `json:"registration"`
}

// CreateParticipantRequest adds a walk-in participant.
type CreateParticipantRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdateAttendanceRequest is the payload for an attendance update.
type UpdateAttendanceRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// UpdatePaymentRequest is the payload for a payment status update.
type UpdatePaymentRequest struct {
	Status string `json:"status"`
}

// CreateSurveyRequest defines a survey for an event.
type CreateSurveyRequest struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// SubmitSurveyRequest is a participant's survey submission.
type SubmitSurveyRequest struct {
	ParticipantID string   `json:"participant_id"`
	Answers       []Answer `json:"answers"`
}

// DataResponse is the {success, data} envelope used by update endpoints.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse is a standard JSON error envelope. Message carries the
// user-facing text when it differs from the machine-readable Error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BookingResult summarises the outcome of a single registration attempt.
// Used in the concurrent test harness.
type BookingResult struct {
	Email        string
	Registration *Registration
	Error        error
}
