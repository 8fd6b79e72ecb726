package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

const selectTier = `SELECT id, event_id, name, price, total_capacity, remaining_capacity, created_at
	FROM ticket_tiers`

// CreateEvent inserts an event and its tiers atomically.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
			e.ID, e.Name, e.Description, toNanos(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		for i := range e.Tiers {
			if err := insertTier(ctx, tx, &e.Tiers[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return apperr.Store("create event", err)
}

// ListEvents returns all events, newest first. Tiers are not loaded.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Store("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			e       model.Event
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &created); err != nil {
			return nil, apperr.Store("scan event", err)
		}
		e.CreatedAt = fromNanos(created)
		events = append(events, e)
	}
	return events, apperr.Store("list events", rows.Err())
}

// GetEvent returns an event with its tiers.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var (
		e       model.Event
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM events WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get event", err)
	}
	e.CreatedAt = fromNanos(created)

	tiers, err := s.ListTiers(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Tiers = tiers
	return &e, nil
}

// CreateTier adds a tier to an existing event.
func (s *Store) CreateTier(ctx context.Context, t *model.TicketTier) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertTier(ctx, tx, t)
	})
	return apperr.Store("create tier", err)
}

// GetTier returns one tier.
func (s *Store) GetTier(ctx context.Context, id string) (*model.TicketTier, error) {
	t, err := scanTier(s.db.QueryRowContext(ctx, selectTier+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket tier %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get tier", err)
	}
	return t, nil
}

// ListTiers returns an event's tiers in creation order.
func (s *Store) ListTiers(ctx context.Context, eventID string) ([]model.TicketTier, error) {
	rows, err := s.db.QueryContext(ctx, selectTier+` WHERE event_id = ? ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, apperr.Store("list tiers", err)
	}
	defer rows.Close()

	var tiers []model.TicketTier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, apperr.Store("scan tier", err)
		}
		tiers = append(tiers, *t)
	}
	return tiers, apperr.Store("list tiers", rows.Err())
}

func insertTier(ctx context.Context, tx *sql.Tx, t *model.TicketTier) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ticket_tiers (id, event_id, name, price, total_capacity, remaining_capacity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, t.Name, t.Price.String(), t.TotalCapacity, t.RemainingCapacity, toNanos(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert tier: %w", err)
	}
	return nil
}

func scanTier(row rowScanner) (*model.TicketTier, error) {
	var (
		t       model.TicketTier
		price   string
		created int64
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.Name, &price, &t.TotalCapacity, &t.RemainingCapacity, &created); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse tier price %q: %w", price, err)
	}
	t.Price = p
	t.CreatedAt = fromNanos(created)
	return &t, nil
}
