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

// ReserveUnit decrements the tier's remaining capacity when it is positive
// and records token in the unit ledger.
func (s *Store) ReserveUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ticket_tiers SET remaining_capacity = remaining_capacity - 1
			 WHERE id = ? AND remaining_capacity > 0`, tierID)
		if err != nil {
			return fmt.Errorf("decrement capacity: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM ticket_tiers WHERE id = ?`, tierID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("ticket tier %s: %w", tierID, apperr.ErrNotFound)
			}
			if err != nil {
				return err
			}
			return apperr.ErrSoldOut
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO ticket_units (token, tier_id, issued_at) VALUES (?, ?, ?)`,
			string(token), tierID, toNanos(at))
		if err != nil {
			return fmt.Errorf("insert unit: %w", err)
		}
		return nil
	})
	return apperr.Store("reserve unit", err)
}

// ReleaseUnit marks token released and returns its unit to the tier. It
// reports false when token was already released.
func (s *Store) ReleaseUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) (bool, error) {
	var released bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ticket_units SET released_at = ?
			 WHERE token = ? AND tier_id = ? AND released_at IS NULL`,
			toNanos(at), string(token), tierID)
		if err != nil {
			return fmt.Errorf("mark unit released: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var owner string
			err := tx.QueryRowContext(ctx,
				`SELECT tier_id FROM ticket_units WHERE token = ?`, string(token)).Scan(&owner)
			if errors.Is(err, sql.ErrNoRows) {
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

		res, err = tx.ExecContext(ctx,
			`UPDATE ticket_tiers SET remaining_capacity = remaining_capacity + 1
			 WHERE id = ? AND remaining_capacity < total_capacity`, tierID)
		if err != nil {
			return fmt.Errorf("increment capacity: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.token, u.tier_id, u.issued_at
		 FROM ticket_units u
		 WHERE u.released_at IS NULL
		   AND u.issued_at < ?
		   AND NOT EXISTS (
		     SELECT 1 FROM registrations r
		     WHERE r.unit_token = u.token AND r.status <> 'cancelled'
		   )
		 ORDER BY u.issued_at
		 LIMIT ?`, toNanos(issuedBefore), limit)
	if err != nil {
		return nil, apperr.Store("list orphaned units", err)
	}
	defer rows.Close()

	var units []model.TicketUnit
	for rows.Next() {
		var (
			u      model.TicketUnit
			token  string
			issued int64
		)
		if err := rows.Scan(&token, &u.TierID, &issued); err != nil {
			return nil, apperr.Store("scan unit", err)
		}
		u.Token = model.UnitToken(token)
		u.IssuedAt = fromNanos(issued)
		units = append(units, u)
	}
	return units, apperr.Store("list orphaned units", rows.Err())
}
