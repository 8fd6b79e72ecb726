package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

func TestPaymentUpdateStatus_RecordsEveryChange(t *testing.T) {
	env := newTestEnv(t)
	ev, tier := env.createEvent(t, 1)
	ctx := context.Background()

	reg, err := env.register(ctx, ev, tier, "a@example.com")
	require.NoError(t, err)

	pay, err := env.payments.UpdateStatus(ctx, ev.ID, reg.PaymentID, "paid", "cashier")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, pay.Status)

	history, err := env.payments.History(ctx, reg.PaymentID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.PaymentUnpaid, history[0].OldStatus)
	assert.Equal(t, model.PaymentPaid, history[0].NewStatus)

	audit, err := env.history.List(ctx, "payment", reg.PaymentID)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "cashier", audit[0].Actor)
}

func TestPaymentUpdateStatus_SameStatusWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ev, tier := env.createEvent(t, 1)
	ctx := context.Background()

	reg, err := env.register(ctx, ev, tier, "a@example.com")
	require.NoError(t, err)

	pay, err := env.payments.UpdateStatus(ctx, ev.ID, reg.PaymentID, "unpaid", "cashier")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnpaid, pay.Status)

	history, err := env.payments.History(ctx, reg.PaymentID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPaymentUpdateStatus_PaidBackToUnpaid(t *testing.T) {
	env := newTestEnv(t)
	ev, tier := env.createEvent(t, 1)
	ctx := context.Background()

	reg, err := env.register(ctx, ev, tier, "a@example.com")
	require.NoError(t, err)

	_, err = env.payments.UpdateStatus(ctx, ev.ID, reg.PaymentID, "paid", "cashier")
	require.NoError(t, err)
	pay, err := env.payments.UpdateStatus(ctx, ev.ID, reg.PaymentID, "UNPAID", "supervisor")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnpaid, pay.Status)

	history, err := env.payments.History(ctx, reg.PaymentID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.PaymentPaid, history[1].OldStatus)
	assert.Equal(t, model.PaymentUnpaid, history[1].NewStatus)
}

func TestPaymentUpdateStatus_Errors(t *testing.T) {
	env := newTestEnv(t)
	ev, tier := env.createEvent(t, 1)
	other, _ := env.createEvent(t, 1)
	ctx := context.Background()

	reg, err := env.register(ctx, ev, tier, "a@example.com")
	require.NoError(t, err)

	_, err = env.payments.UpdateStatus(ctx, ev.ID, reg.PaymentID, "refunded", "cashier")
	assert.ErrorIs(t, err, apperr.ErrInvalidStatus)
	assert.Equal(t, apperr.ClassValidation, apperr.ClassOf(err))

	_, err = env.payments.UpdateStatus(ctx, ev.ID, reg.PaymentID, "", "cashier")
	assert.Equal(t, apperr.ClassValidation, apperr.ClassOf(err))

	_, err = env.payments.UpdateStatus(ctx, ev.ID, "missing", "paid", "cashier")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.payments.UpdateStatus(ctx, other.ID, reg.PaymentID, "paid", "cashier")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "payment of another event")

	_, err = env.payments.History(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
