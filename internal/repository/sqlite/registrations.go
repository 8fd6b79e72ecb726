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

const selectRegistration = `SELECT r.id, r.event_id, r.ticket_tier_id, r.participant_id,
	r.participant_name, r.participant_email, r.unit_token, COALESCE(p.id, ''),
	r.status, r.created_at, r.updated_at
	FROM registrations r
	LEFT JOIN payments p ON p.registration_id = r.id`

// CreateParticipant inserts a participant without a registration.
func (s *Store) CreateParticipant(ctx context.Context, p *model.Participant) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertParticipant(ctx, tx, p)
	})
	return apperr.Store("create participant", err)
}

// GetParticipant returns a participant of eventID.
func (s *Store) GetParticipant(ctx context.Context, eventID, participantID string) (*model.Participant, error) {
	var (
		p       model.Participant
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, event_id, name, email, created_at FROM participants WHERE id = ? AND event_id = ?`,
		participantID, eventID).Scan(&p.ID, &p.EventID, &p.Name, &p.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("participant %s: %w", participantID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get participant", err)
	}
	p.CreatedAt = fromNanos(created)
	return &p, nil
}

// CreateRegistration writes the participant, the registration, its payment
// and the creation history entry in one transaction.
func (s *Store) CreateRegistration(ctx context.Context, reg *model.Registration, p *model.Participant, pay *model.Payment, entry model.HistoryEntry) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertParticipant(ctx, tx, p); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (id, event_id, ticket_tier_id, participant_id,
			   participant_name, participant_email, unit_token, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reg.ID, reg.EventID, reg.TicketTierID, reg.ParticipantID,
			reg.Participant.Name, reg.Participant.Email, string(reg.UnitToken),
			string(reg.Status), toNanos(reg.CreatedAt), toNanos(reg.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}

		if pay != nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO payments (id, registration_id, amount, status, due_date, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				pay.ID, pay.RegistrationID, pay.Amount.String(), string(pay.Status),
				toNanos(pay.DueDate), toNanos(pay.CreatedAt), toNanos(pay.UpdatedAt))
			if err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}

		return insertHistory(ctx, tx, entry)
	})
	return apperr.Store("create registration", err)
}

// TransitionRegistration moves a registration to status to and records the
// change. Asking for the current status reports changed=false and writes
// nothing.
func (s *Store) TransitionRegistration(ctx context.Context, id string, to model.RegistrationStatus, actor string, at time.Time) (*model.Registration, bool, error) {
	var (
		reg     *model.Registration
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanRegistration(tx.QueryRowContext(ctx, selectRegistration+` WHERE r.id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("registration %s: %w", id, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		reg = current
		if current.Status == to {
			return nil
		}
		if !current.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: registration %s -> %s", apperr.ErrInvalidTransition, current.Status, to)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE registrations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), toNanos(at), id, string(current.Status))
		if err != nil {
			return fmt.Errorf("update registration: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("registration %s changed concurrently", id)
		}

		entry := model.HistoryEntry{
			EntityType: model.EntityRegistration,
			EntityID:   id,
			FromState:  string(current.Status),
			ToState:    string(to),
			Actor:      actor,
			Timestamp:  at,
		}
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
		reg.Status = to
		reg.UpdatedAt = at
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, apperr.Store("transition registration", err)
	}
	return reg, changed, nil
}

// GetRegistration returns one registration.
func (s *Store) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(s.db.QueryRowContext(ctx, selectRegistration+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registration %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get registration", err)
	}
	return reg, nil
}

// ListRegistrations returns an event's registrations, oldest first.
func (s *Store) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRegistration+` WHERE r.event_id = ? ORDER BY r.created_at, r.id`, eventID)
	if err != nil {
		return nil, apperr.Store("list registrations", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, apperr.Store("scan registration", err)
		}
		regs = append(regs, *reg)
	}
	return regs, apperr.Store("list registrations", rows.Err())
}

func insertParticipant(ctx context.Context, tx *sql.Tx, p *model.Participant) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO participants (id, event_id, name, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.Name, p.Email, toNanos(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var (
		r       model.Registration
		token   string
		status  string
		created int64
		updated int64
	)
	err := row.Scan(&r.ID, &r.EventID, &r.TicketTierID, &r.ParticipantID,
		&r.Participant.Name, &r.Participant.Email, &token, &r.PaymentID,
		&status, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.UnitToken = model.UnitToken(token)
	r.Status = model.RegistrationStatus(status)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return &r, nil
}
