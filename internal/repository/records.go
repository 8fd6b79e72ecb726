package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

const selectPayment = `SELECT id, registration_id, amount::text, status, due_date, created_at, updated_at
	FROM payments`

// GetPayment returns one payment.
func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, selectPayment+` WHERE id = $1`, id))
	if isMissing(err) {
		return nil, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get payment", err)
	}
	return p, nil
}

// UpdatePaymentStatus locks the payment row, sets its status and appends the
// payment history row and audit entry. An unchanged status writes nothing.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, to model.PaymentStatus, actor string, at time.Time) (*model.Payment, bool, error) {
	var (
		pay     *model.Payment
		changed bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanPayment(tx.QueryRow(ctx, selectPayment+` WHERE id = $1 FOR UPDATE`, id))
		if isMissing(err) {
			return fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		pay = current
		if current.Status == to {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3`, string(to), at, id)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO payment_history (payment_id, old_status, new_status, updated_at) VALUES ($1, $2, $3, $4)`,
			id, string(current.Status), string(to), at)
		if err != nil {
			return fmt.Errorf("insert payment history: %w", err)
		}

		entry := model.HistoryEntry{
			EntityType: model.EntityPayment,
			EntityID:   id,
			FromState:  string(current.Status),
			ToState:    string(to),
			Actor:      actor,
			Timestamp:  at,
		}
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
		pay.Status = to
		pay.UpdatedAt = at
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, apperr.Store("update payment status", err)
	}
	return pay, changed, nil
}

// ListPaymentHistory returns a payment's status changes, oldest first.
func (s *Store) ListPaymentHistory(ctx context.Context, paymentID string) ([]model.PaymentHistory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, payment_id, old_status, new_status, updated_at
		 FROM payment_history WHERE payment_id = $1 ORDER BY id`, paymentID)
	if pgCode(err) == codeInvalidTextRepr {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("list payment history", err)
	}
	defer rows.Close()

	var history []model.PaymentHistory
	for rows.Next() {
		var (
			h                    model.PaymentHistory
			oldStatus, newStatus string
		)
		if err := rows.Scan(&h.ID, &h.PaymentID, &oldStatus, &newStatus, &h.UpdatedAt); err != nil {
			return nil, apperr.Store("scan payment history", err)
		}
		h.OldStatus = model.PaymentStatus(oldStatus)
		h.NewStatus = model.PaymentStatus(newStatus)
		history = append(history, h)
	}
	return history, apperr.Store("list payment history", rows.Err())
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p              model.Payment
		amount, status string
	)
	if err := row.Scan(&p.ID, &p.RegistrationID, &amount, &status, &p.DueDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	p.Amount = a
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

// UpsertAttendance creates or overwrites the (participant, event) record.
// checked_in_at keeps its first non-null value.
func (s *Store) UpsertAttendance(ctx context.Context, a model.Attendance, actor string, at time.Time) (*model.Attendance, error) {
	var out *model.Attendance
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var prev string
		err := tx.QueryRow(ctx,
			`SELECT status FROM attendance WHERE participant_id = $1 AND event_id = $2 FOR UPDATE`,
			a.ParticipantID, a.EventID).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read attendance: %w", err)
		}

		out, err = scanAttendance(tx.QueryRow(ctx,
			`INSERT INTO attendance (participant_id, event_id, status, checked_in_at, note, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (participant_id, event_id) DO UPDATE SET
			   status = EXCLUDED.status,
			   note = EXCLUDED.note,
			   checked_in_at = COALESCE(attendance.checked_in_at, EXCLUDED.checked_in_at),
			   updated_at = EXCLUDED.updated_at
			 RETURNING participant_id, event_id, status, checked_in_at, note, updated_at`,
			a.ParticipantID, a.EventID, string(a.Status), a.CheckedInAt, a.Note, at))
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
	a, err := scanAttendance(s.db.QueryRow(ctx,
		`SELECT participant_id, event_id, status, checked_in_at, note, updated_at
		 FROM attendance WHERE participant_id = $1 AND event_id = $2`, participantID, eventID))
	if isMissing(err) {
		return nil, fmt.Errorf("attendance %s: %w", model.AttendanceKey(eventID, participantID), apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get attendance", err)
	}
	return a, nil
}

func scanAttendance(row pgx.Row) (*model.Attendance, error) {
	var (
		a      model.Attendance
		status string
	)
	if err := row.Scan(&a.ParticipantID, &a.EventID, &status, &a.CheckedInAt, &a.Note, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = model.AttendanceStatus(status)
	return &a, nil
}

// CreateSurvey inserts a survey with its questions.
func (s *Store) CreateSurvey(ctx context.Context, sv *model.Survey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO surveys (id, event_id, title, questions, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sv.ID, sv.EventID, sv.Title, sv.Questions, sv.CreatedAt)
	if pgCode(err) == codeForeignKeyViolated {
		return fmt.Errorf("event %s: %w", sv.EventID, apperr.ErrNotFound)
	}
	return apperr.Store("create survey", err)
}

// GetSurvey returns a survey of eventID.
func (s *Store) GetSurvey(ctx context.Context, eventID, surveyID string) (*model.Survey, error) {
	var sv model.Survey
	err := s.db.QueryRow(ctx,
		`SELECT id, event_id, title, questions, created_at FROM surveys WHERE id = $1 AND event_id = $2`,
		surveyID, eventID).Scan(&sv.ID, &sv.EventID, &sv.Title, &sv.Questions, &sv.CreatedAt)
	if isMissing(err) {
		return nil, fmt.Errorf("survey %s: %w", surveyID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get survey", err)
	}
	return &sv, nil
}

// HasSurveyResponse reports whether participantID already answered surveyID.
func (s *Store) HasSurveyResponse(ctx context.Context, surveyID, participantID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM survey_responses WHERE survey_id = $1 AND participant_id = $2)`,
		surveyID, participantID).Scan(&exists)
	if err != nil {
		return false, apperr.Store("check survey response", err)
	}
	return exists, nil
}

// InsertSurveyResponse stores a response and its history entry. The unique
// index on (survey_id, participant_id) turns a concurrent second insert into
// apperr.ErrDuplicate.
func (s *Store) InsertSurveyResponse(ctx context.Context, r *model.SurveyResponse, entry model.HistoryEntry) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO survey_responses (id, survey_id, participant_id, answers, submitted_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			r.ID, r.SurveyID, r.ParticipantID, r.Answers, r.SubmittedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("survey %s participant %s: %w", r.SurveyID, r.ParticipantID, apperr.ErrDuplicate)
			}
			return fmt.Errorf("insert survey response: %w", err)
		}
		return insertHistory(ctx, tx, entry)
	})
	return apperr.Store("insert survey response", err)
}

// ListSurveyResponses returns a survey's responses in submission order.
func (s *Store) ListSurveyResponses(ctx context.Context, surveyID string) ([]model.SurveyResponse, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, survey_id, participant_id, answers, submitted_at
		 FROM survey_responses WHERE survey_id = $1 ORDER BY submitted_at, id`, surveyID)
	if err != nil {
		return nil, apperr.Store("list survey responses", err)
	}
	defer rows.Close()

	var out []model.SurveyResponse
	for rows.Next() {
		var r model.SurveyResponse
		if err := rows.Scan(&r.ID, &r.SurveyID, &r.ParticipantID, &r.Answers, &r.SubmittedAt); err != nil {
			return nil, apperr.Store("scan survey response", err)
		}
		out = append(out, r)
	}
	return out, apperr.Store("list survey responses", rows.Err())
}

// AppendHistory records a transition that is not part of a larger write.
func (s *Store) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	_, err := s.db.Exec(ctx, insertHistorySQL,
		string(entry.EntityType), entry.EntityID, entry.FromState, entry.ToState, entry.Actor, entry.Timestamp)
	return apperr.Store("append history", err)
}

// ListHistory returns an entity's entries in the order they were written.
func (s *Store) ListHistory(ctx context.Context, entityType model.EntityType, entityID string) ([]model.HistoryEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, entity_type, entity_id, from_state, to_state, actor, occurred_at
		 FROM history_entries WHERE entity_type = $1 AND entity_id = $2 ORDER BY id`,
		string(entityType), entityID)
	if err != nil {
		return nil, apperr.Store("list history", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var (
			h    model.HistoryEntry
			kind string
		)
		if err := rows.Scan(&h.ID, &kind, &h.EntityID, &h.FromState, &h.ToState, &h.Actor, &h.Timestamp); err != nil {
			return nil, apperr.Store("scan history", err)
		}
		h.EntityType = model.EntityType(kind)
		entries = append(entries, h)
	}
	return entries, apperr.Store("list history", rows.Err())
}

const insertHistorySQL = `INSERT INTO history_entries (entity_type, entity_id, from_state, to_state, actor, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

func insertHistory(ctx context.Context, tx pgx.Tx, h model.HistoryEntry) error {
	_, err := tx.Exec(ctx, insertHistorySQL,
		string(h.EntityType), h.EntityID, h.FromState, h.ToState, h.Actor, h.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}
