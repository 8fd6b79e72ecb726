package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

const maxNoteLen = 1000

// AttendanceService records check-ins.
type AttendanceService struct {
	store AttendanceStore
	opts  Options
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(store AttendanceStore, opts Options) *AttendanceService {
	return &AttendanceService{store: store, opts: opts.withDefaults()}
}

// Set creates or overwrites a participant's attendance for an event. The
// first time the participant is marked present is kept as the check-in
// time, whatever happens afterwards.
func (s *AttendanceService) Set(ctx context.Context, eventID, participantID, status, note, actor string) (*model.Attendance, error) {
	if strings.TrimSpace(status) == "" {
		return nil, apperr.Validation("status", "status is required")
	}
	st, err := model.ParseAttendanceStatus(status)
	if err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxNoteLen {
		return nil, apperr.Validation("note", "note is too long")
	}
	if _, err := s.store.GetParticipant(ctx, eventID, participantID); err != nil {
		return nil, err
	}

	now := s.opts.Clock()
	a := model.Attendance{
		ParticipantID: participantID,
		EventID:       eventID,
		Status:        st,
		Note:          note,
	}
	if st == model.AttendancePresent {
		a.CheckedInAt = &now
	}

	out, err := s.store.UpsertAttendance(ctx, a, actorOrDefault(actor), now)
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.Transitions.WithLabelValues(string(model.EntityAttendance), string(st)).Inc()
	return out, nil
}

// Get returns a participant's attendance record.
func (s *AttendanceService) Get(ctx context.Context, eventID, participantID string) (*model.Attendance, error) {
	return s.store.GetAttendance(ctx, eventID, participantID)
}
