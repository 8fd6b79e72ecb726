package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// UpsertAttendance creates or overwrites the (participant, event) record.
// checked_in_at keeps its first non-null value. A status change is recorded
// in history.
func (s *Store) UpsertAttendance(ctx context.Context, a model.Attendance, actor string, at time.Time) (*model.Attendance, error) {
	var out *model.Attendance
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var prev string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM attendance WHERE participant_id = ? AND event_id = ?`,
			a.ParticipantID, a.EventID).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read attendance: %w", err)
		}

		row := tx.QueryRowContext(ctx,
			`INSERT INTO attendance (participant_id, event_id, status, checked_in_at, note, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (participant_id, event_id) DO UPDATE SET
			   status = excluded.status,
			   note = excluded.note,
			   checked_in_at = COALESCE(attendance.checked_in_at, excluded.checked_in_at),
			   updated_at = excluded.updated_at
			 RETURNING participant_id, event_id, status, checked_in_at, note, updated_at`,
			a.ParticipantID, a.EventID, string(a.Status), nullNanos(a.CheckedInAt), a.Note, toNanos(at))
		out, err = scanAttendance(row)
		if err != nil {
			return fmt.Errorf("upsert attendance: %w", err)
		}

		if prev == string(out.Status) {
			return nil
		}
		return insertHistory(ctx, tx, model.HistoryEntry{
			EntityType: model.EntityAttendance,
			EntityID:   model.AttendanceKey(a.EventID, a.ParticipantID),
			FromState:  prev,
			ToState:    string(out.Status),
			Actor:      actor,
			Timestamp:  at,
		})
	})
	if err != nil {
		return nil, apperr.Store("upsert attendance", err)
	}
	return out, nil
}

// GetAttendance returns the attendance record for a participant.
func (s *Store) GetAttendance(ctx context.Context, eventID, participantID string) (*model.Attendance, error) {
	a, err := scanAttendance(s.db.QueryRowContext(ctx,
		`SELECT participant_id, event_id, status, checked_in_at, note, updated_at
		 FROM attendance WHERE participant_id = ? AND event_id = ?`, participantID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attendance %s: %w", model.AttendanceKey(eventID, participantID), apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get attendance", err)
	}
	return a, nil
}

func scanAttendance(row rowScanner) (*model.Attendance, error) {
	var (
		a         model.Attendance
		status    string
		checkedIn sql.NullInt64
		updated   int64
	)
	if err := row.Scan(&a.ParticipantID, &a.EventID, &status, &checkedIn, &a.Note, &updated); err != nil {
		return nil, err
	}
	a.Status = model.AttendanceStatus(status)
	a.CheckedInAt = fromNullNanos(checkedIn)
	a.UpdatedAt = fromNanos(updated)
	return &a, nil
}
