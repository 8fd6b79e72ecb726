package model

import (
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
)

// RegistrationStatus is the lifecycle state of a Registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// registrationEdges lists the only transitions a registration may take.
var registrationEdges = map[RegistrationStatus][]RegistrationStatus{
	RegistrationPending:   {RegistrationConfirmed, RegistrationCancelled},
	RegistrationConfirmed: {RegistrationCancelled},
}

// CanTransitionTo reports whether s -> next is a valid edge.
func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	for _, to := range registrationEdges[s] {
		if to == next {
			return true
		}
	}
	return false
}

// HoldsUnit reports whether a registration in this state owns a capacity unit.
func (s RegistrationStatus) HoldsUnit() bool {
	return s != RegistrationCancelled
}

// PaymentStatus is the status of a Payment. Any value may follow any other.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// ParsePaymentStatus rejects anything outside the closed set.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch v := PaymentStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case PaymentUnpaid, PaymentPaid:
		return v, nil
	}
	return "", fmt.Errorf("%w: payment status %q", apperr.ErrInvalidStatus, s)
}

// AttendanceStatus is a participant's check-in state for an event.
type AttendanceStatus string

const (
	AttendancePending AttendanceStatus = "pending"
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// ParseAttendanceStatus rejects anything outside the closed set.
func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch v := AttendanceStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case AttendancePending, AttendancePresent, AttendanceAbsent:
		return v, nil
	}
	return "", fmt.Errorf("%w: attendance status %q", apperr.ErrInvalidStatus, s)
}

// EntityType names the kind of entity a HistoryEntry describes.
type EntityType string

const (
	EntityRegistration   EntityType = "registration"
	EntityPayment        EntityType = "payment"
	EntityAttendance     EntityType = "attendance"
	EntitySurveyResponse EntityType = "survey_response"
	EntityTicketUnit     EntityType = "ticket_unit"
)

// ParseEntityType rejects unknown entity kinds.
func ParseEntityType(s string) (EntityType, error) {
	switch v := EntityType(strings.ToLower(strings.TrimSpace(s))); v {
	case EntityRegistration, EntityPayment, EntityAttendance, EntitySurveyResponse, EntityTicketUnit:
		return v, nil
	}
	return "", apperr.Validation("entity_type", fmt.Sprintf("unknown entity type %q", s))
}

// AttendanceKey is the history entity id for an attendance record.
func AttendanceKey(eventID, participantID string) string {
	return eventID + ":" + participantID
}

// Ticket unit history states.
const (
	UnitIssued    = "issued"
	UnitReclaimed = "reclaimed"
)
