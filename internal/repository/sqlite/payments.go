package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

const selectPayment = `SELECT id, registration_id, amount, status, due_date, created_at, updated_at
	FROM payments`

// GetPayment returns one payment.
func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, selectPayment+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store("get payment", err)
	}
	return p, nil
}

// UpdatePaymentStatus sets a payment's status and appends both the payment
// history row and the audit entry. An unchanged status writes nothing.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, to model.PaymentStatus, actor string, at time.Time) (*model.Payment, bool, error) {
	var (
		pay     *model.Payment
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanPayment(tx.QueryRowContext(ctx, selectPayment+` WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		pay = current
		if current.Status == to {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), toNanos(at), id, string(current.Status))
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("payment %s changed concurrently", id)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment_history (payment_id, old_status, new_status, updated_at) VALUES (?, ?, ?, ?)`,
			id, string(current.Status), string(to), toNanos(at))
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payment_id, old_status, new_status, updated_at
		 FROM payment_history WHERE payment_id = ? ORDER BY id`, paymentID)
	if err != nil {
		return nil, apperr.Store("list payment history", err)
	}
	defer rows.Close()

	var history []model.PaymentHistory
	for rows.Next() {
		var (
			h                    model.PaymentHistory
			oldStatus, newStatus string
			updated              int64
		)
		if err := rows.Scan(&h.ID, &h.PaymentID, &oldStatus, &newStatus, &updated); err != nil {
			return nil, apperr.Store("scan payment history", err)
		}
		h.OldStatus = model.PaymentStatus(oldStatus)
		h.NewStatus = model.PaymentStatus(newStatus)
		h.UpdatedAt = fromNanos(updated)
		history = append(history, h)
	}
	return history, apperr.Store("list payment history", rows.Err())
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var (
		p                     model.Payment
		amount, status        string
		due, created, updated int64
	)
	if err := row.Scan(&p.ID, &p.RegistrationID, &amount, &status, &due, &created, &updated); err != nil {
		return nil, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	p.Amount = a
	p.Status = model.PaymentStatus(status)
	p.DueDate = fromNanos(due)
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}
