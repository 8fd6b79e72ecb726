// Package repository implements the PostgreSQL store for the registration
// engine. It uses pgx directly (no ORM).
//
// Every capacity change is a single conditional UPDATE on the tier row, so
// concurrent reservations against the same tier serialise on that row's lock
// for the length of one statement instead of a whole request.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// PostgreSQL error codes the store maps to domain errors.
const (
	codeUniqueViolation    = "23505"
	codeInvalidTextRepr    = "22P02"
	codeForeignKeyViolated = "23503"
)

// Store persists engine state in PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.db, fn)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// isMissing reports whether err means the row cannot exist: no rows, or an
// id that is not a valid UUID.
func isMissing(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || pgCode(err) == codeInvalidTextRepr
}

const selectTier = `SELECT id, event_id, name, price::text, total_capacity, remaining_capacity, created_at
	FROM ticket_tiers`

// CreateEvent inserts an event and its tiers atomically.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO events (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
			e.ID, e.Name, e.Description, e.CreatedAt)
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

// ListEvents returns all events ordered by creation time descending.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, created_at FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Store("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.CreatedAt); err != nil {
			return nil, apperr.Store("scan event", err)
		}
		events = append(events, e)
	}
	return events, apperr.Store("list events", rows.Err())
}

// GetEvent returns a single event with its tiers.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM events WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.Description, &e.CreatedAt)
	if isMissing(err) {
		return nil, fmt.Errorf("event %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get event", err)
	}

	tiers, err := s.ListTiers(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Tiers = tiers
	return &e, nil
}

// CreateTier adds a tier to an existing event.
func (s *Store) CreateTier(ctx context.Context, t *model.TicketTier) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return insertTier(ctx, tx, t)
	})
	if pgCode(err) == codeForeignKeyViolated {
		return fmt.Errorf("event %s: %w", t.EventID, apperr.ErrNotFound)
	}
	return apperr.Store("create tier", err)
}

// GetTier returns one tier.
func (s *Store) GetTier(ctx context.Context, id string) (*model.TicketTier, error) {
	t, err := scanTier(s.db.QueryRow(ctx, selectTier+` WHERE id = $1`, id))
	if isMissing(err) {
		return nil, fmt.Errorf("ticket tier %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get tier", err)
	}
	return t, nil
}

// ListTiers returns an event's tiers in creation order.
func (s *Store) ListTiers(ctx context.Context, eventID string) ([]model.TicketTier, error) {
	rows, err := s.db.Query(ctx, selectTier+` WHERE event_id = $1 ORDER BY created_at, id`, eventID)
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

func insertTier(ctx context.Context, tx pgx.Tx, t *model.TicketTier) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ticket_tiers (id, event_id, name, price, total_capacity, remaining_capacity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.EventID, t.Name, t.Price.String(), t.TotalCapacity, t.RemainingCapacity, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert tier: %w", err)
	}
	return nil
}

func scanTier(row pgx.Row) (*model.TicketTier, error) {
	var (
		t     model.TicketTier
		price string
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.Name, &price, &t.TotalCapacity, &t.RemainingCapacity, &t.CreatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse tier price %q: %w", price, err)
	}
	t.Price = p
	return &t, nil
}
