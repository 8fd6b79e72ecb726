package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/notify"
)

// PaymentService moves payments between unpaid and paid. Either direction
// is allowed and every change is recorded.
type PaymentService struct {
	store PaymentStore
	opts  Options
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(store PaymentStore, opts Options) *PaymentService {
	return &PaymentService{store: store, opts: opts.withDefaults()}
}

// UpdateStatus sets the status of a payment that belongs to eventID.
// Setting the current status writes nothing and returns the payment.
func (s *PaymentService) UpdateStatus(ctx context.Context, eventID, paymentID, status, actor string) (*model.Payment, error) {
	if strings.TrimSpace(status) == "" {
		return nil, apperr.Validation("status", "status is required")
	}
	to, err := model.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	if err := s.checkEvent(ctx, eventID, paymentID); err != nil {
		return nil, err
	}

	pay, changed, err := s.store.UpdatePaymentStatus(ctx, paymentID, to, actorOrDefault(actor), s.opts.Clock())
	if err != nil {
		return nil, err
	}
	if !changed {
		return pay, nil
	}

	s.opts.Metrics.Transitions.WithLabelValues(string(model.EntityPayment), string(to)).Inc()
	s.opts.Logger.Info("payment status changed", "payment_id", pay.ID, "status", pay.Status)
	s.opts.Notifier.Notify(notify.Message{
		Type:           notify.TypePaymentStatusChanged,
		EventID:        eventID,
		RegistrationID: pay.RegistrationID,
		PaymentID:      pay.ID,
		Status:         string(pay.Status),
		At:             pay.UpdatedAt,
	})
	return pay, nil
}

// History lists a payment's status changes, oldest first.
func (s *PaymentService) History(ctx context.Context, paymentID string) ([]model.PaymentHistory, error) {
	if _, err := s.store.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.store.ListPaymentHistory(ctx, paymentID)
}

func (s *PaymentService) checkEvent(ctx context.Context, eventID, paymentID string) error {
	pay, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	reg, err := s.store.GetRegistration(ctx, pay.RegistrationID)
	if err != nil {
		return err
	}
	if reg.EventID != eventID {
		return fmt.Errorf("payment %s of event %s: %w", paymentID, eventID, apperr.ErrNotFound)
	}
	return nil
}
