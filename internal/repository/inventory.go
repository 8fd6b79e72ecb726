package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// ReserveUnit decrements the tier's remaining capacity when it is positive
// and records token in the unit ledger.
//
// The WHERE clause is the whole guard: two transactions racing for the last
// unit both try the UPDATE, the second blocks on the row lock, re-evaluates
// remaining_capacity > 0 after the first commits and matches no row.
func (s *Store) ReserveUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE ticket_tiers SET remaining_capacity = remaining_capacity - 1
			 WHERE id = $1 AND remaining_capacity > 0`, tierID)
		if err != nil {
			return fmt.Errorf("decrement capacity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var one int
			err := tx.QueryRow(ctx, `SELECT 1 FROM ticket_tiers WHERE id = $1`, tierID).Scan(&one)
			if isMissing(err) {
				return fmt.Errorf("ticket tier %s: %w", tierID, apperr.ErrNotFound)
			}
			if err != nil {
				return err
			}
			return apperr.ErrSoldOut
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ticket_units (token, tier_id, issued_at) VALUES ($1, $2, $3)`,
			string(token), tierID, at)
		if err != nil {
			return fmt.Errorf("insert unit: %w", err)
		}
		return nil
	})
	if isMissing(err) {
		return fmt.Errorf("ticket tier %s: %w", tierID, apperr.ErrNotFound)
	}
	return apperr.Store("reserve unit", err)
}

// ReleaseUnit marks token released and returns its unit to the tier. It
// reports false when token was already released.
func (s *Store) ReleaseUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) (bool, error) {
	var released bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE ticket_units SET released_at = $1
			 WHERE token = $2 AND tier_id = $3 AND released_at IS NULL`,
			at, string(token), tierID)
		if err != nil {
			if pgCode(err) == codeInvalidTextRepr {
				return apperr.Invariant("release of malformed unit %s on tier %s", token, tierID)
			}
			return fmt.Errorf("mark unit released: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var owner string
			err := tx.QueryRow(ctx,
				`SELECT tier_id FROM ticket_units WHERE token = $1`, string(token)).Scan(&owner)
			if isMissing(err) {
				return apperr.Invariant("release of unknown unit %s on tier %s", token, tierID)
			}
			if err != nil {
				return err
			}
			if owner != tierID {
				return apperr.Invariant("unit %s belongs to tier %s, not %s", token, owner, tierID)
			}
			return nil
		}

		tag, err = tx.Exec(ctx,
			`UPDATE ticket_tiers SET remaining_capacity = remaining_capacity + 1
			 WHERE id = $1 AND remaining_capacity < total_capacity`, tierID)
		if err != nil {
			return fmt.Errorf("increment capacity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Invariant("tier %s already at total capacity", tierID)
		}
		released = true
		return nil
	})
	if err != nil {
		return false, apperr.Store("release unit", err)
	}
	return released, nil
}

// OrphanedUnits lists unreleased units issued before issuedBefore that no
// live registration holds.
func (s *Store) OrphanedUnits(ctx context.Context, issuedBefore time.Time, limit int) ([]model.TicketUnit, error) {
	rows, err := s.db.Query(ctx,
		`SELECT u.token, u.tier_id, u.issued_at
		 FROM ticket_units u
		 WHERE u.released_at IS NULL
		   AND u.issued_at < $1
		   AND NOT EXISTS (
		     SELECT 1 FROM registrations r
		     WHERE r.unit_token = u.token AND r.status <> 'cancelled'
		   )
		 ORDER BY u.issued_at
		 LIMIT $2`, issuedBefore, limit)
	if err != nil {
		return nil, apperr.Store("list orphaned units", err)
	}
	defer rows.Close()

	var units []model.TicketUnit
	for rows.Next() {
		var (
			u     model.TicketUnit
			token string
		)
		if err := rows.Scan(&token, &u.TierID, &u.IssuedAt); err != nil {
			return nil, apperr.Store("scan unit", err)
		}
		u.Token = model.UnitToken(token)
		units = append(units, u)
	}
	return units, apperr.Store("list orphaned units", rows.Err())
}
