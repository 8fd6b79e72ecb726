package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

const selectRegistration = `SELECT r.id, r.event_id, r.ticket_tier_id, r.participant_id,
	r.participant_name, r.participant_email, r.unit_token::text, COALESCE(p.id::text, ''),
	r.status, r.created_at, r.updated_at
	FROM registrations r
	LEFT JOIN payments p ON p.registration_id = r.id`

// CreateParticipant inserts a participant without a registration.
func (s *Store) CreateParticipant(ctx context.Context, p *model.Participant) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return insertParticipant(ctx, tx, p)
	})
	if pgCode(err) == codeForeignKeyViolated {
		return fmt.Errorf("event %s: %w", p.EventID, apperr.ErrNotFound)
	}
	return apperr.Store("create participant", err)
}

// GetParticipant returns a participant of eventID.
func (s *Store) GetParticipant(ctx context.Context, eventID, participantID string) (*model.Participant, error) {
	var p model.Participant
	err := s.db.QueryRow(ctx,
		`SELECT id, event_id, name, email, created_at FROM participants WHERE id = $1 AND event_id = $2`,
		participantID, eventID).Scan(&p.ID, &p.EventID, &p.Name, &p.Email, &p.CreatedAt)
	if isMissing(err) {
		return nil, fmt.Errorf("participant %s: %w", participantID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get participant", err)
	}
	return &p, nil
}

// CreateRegistration writes the participant, the registration, its payment
// and the creation history entry in one transaction.
func (s *Store) CreateRegistration(ctx context.Context, reg *model.Registration, p *model.Participant, pay *model.Payment, entry model.HistoryEntry) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertParticipant(ctx, tx, p); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO registrations (id, event_id, ticket_tier_id, participant_id,
			   participant_name, participant_email, unit_token, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			reg.ID, reg.EventID, reg.TicketTierID, reg.ParticipantID,
			reg.Participant.Name, reg.Participant.Email, string(reg.UnitToken),
			string(reg.Status), reg.CreatedAt, reg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}

		if pay != nil {
			_, err = tx.Exec(ctx,
				`INSERT INTO payments (id, registration_id, amount, status, due_date, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				pay.ID, pay.RegistrationID, pay.Amount.String(), string(pay.Status),
				pay.DueDate, pay.CreatedAt, pay.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}

		return insertHistory(ctx, tx, entry)
	})
	return apperr.Store("create registration", err)
}

// TransitionRegistration moves a registration to status to and records the
// change. The row is locked for the duration of the check and write.
func (s *Store) TransitionRegistration(ctx context.Context, id string, to model.RegistrationStatus, actor string, at time.Time) (*model.Registration, bool, error) {
	var (
		reg     *model.Registration
		changed bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanRegistration(tx.QueryRow(ctx,
			selectRegistration+` WHERE r.id = $1 FOR UPDATE OF r`, id))
		if isMissing(err) {
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

		_, err = tx.Exec(ctx,
			`UPDATE registrations SET status = $1, updated_at = $2 WHERE id = $3`,
			string(to), at, id)
		if err != nil {
			return fmt.Errorf("update registration: %w", err)
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
	reg, err := scanRegistration(s.db.QueryRow(ctx, selectRegistration+` WHERE r.id = $1`, id))
	if isMissing(err) {
		return nil, fmt.Errorf("registration %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get registration", err)
	}
	return reg, nil
}

// ListRegistrations returns all registrations for a given event.
func (s *Store) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		selectRegistration+` WHERE r.event_id = $1 ORDER BY r.created_at ASC, r.id`, eventID)
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

func insertParticipant(ctx context.Context, tx pgx.Tx, p *model.Participant) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO participants (id, event_id, name, email, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.EventID, p.Name, p.Email, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var (
		r      model.Registration
		token  string
		status string
	)
	err := row.Scan(&r.ID, &r.EventID, &r.TicketTierID, &r.ParticipantID,
		&r.Participant.Name, &r.Participant.Email, &token, &r.PaymentID,
		&status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.UnitToken = model.UnitToken(token)
	r.Status = model.RegistrationStatus(status)
	return &r, nil
}
