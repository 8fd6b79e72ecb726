package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

func TestAvailability_SetAndGetTier(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewAvailability(db, 5*time.Second)
	ctx := context.Background()

	tier := &model.TicketTier{
		ID:                "tier-1",
		EventID:           "event-1",
		Name:              "General",
		Price:             decimal.RequireFromString("1500"),
		TotalCapacity:     5,
		RemainingCapacity: 3,
	}
	data, err := json.Marshal(tier)
	require.NoError(t, err)

	mock.ExpectSet("availability:tier:tier-1", string(data), 5*time.Second).SetVal("OK")
	mock.ExpectGet("availability:tier:tier-1").SetVal(string(data))

	require.NoError(t, cache.SetTier(ctx, tier))

	got, ok, err := cache.GetTier(ctx, "tier-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.RemainingCapacity)
	assert.True(t, tier.Price.Equal(got.Price))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailability_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewAvailability(db, time.Second)

	mock.ExpectGet("availability:tier:missing").RedisNil()

	got, ok, err := cache.GetTier(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailability_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewAvailability(db, time.Second)

	mock.ExpectGet("availability:tier:t").SetErr(errors.New("connection refused"))

	_, _, err := cache.GetTier(context.Background(), "t")
	assert.ErrorContains(t, err, "connection refused")
}

func TestAvailability_Invalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewAvailability(db, time.Second)

	mock.ExpectDel("availability:tier:tier-1").SetVal(1)

	require.NoError(t, cache.InvalidateTier(context.Background(), "tier-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_FirstRequestClaims(t *testing.T) {
	db, mock := redismock.NewClientMock()
	idem := NewIdempotency(db, time.Hour, 30*time.Second)
	ctx := context.Background()

	mock.ExpectSetNX("idempotency:register:k1", pendingMarker, 30*time.Second).SetVal(true)
	mock.ExpectSet("idempotency:register:k1", `{"id":"r1"}`, time.Hour).SetVal("OK")

	stored, err := idem.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	require.NoError(t, idem.Complete(ctx, "k1", []byte(`{"id":"r1"}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_ReplaysStoredResult(t *testing.T) {
	db, mock := redismock.NewClientMock()
	idem := NewIdempotency(db, time.Hour, 30*time.Second)

	mock.ExpectSetNX("idempotency:register:k1", pendingMarker, 30*time.Second).SetVal(false)
	mock.ExpectGet("idempotency:register:k1").SetVal(`{"id":"r1"}`)

	stored, err := idem.Begin(context.Background(), "k1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r1"}`, string(stored))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_InProgress(t *testing.T) {
	db, mock := redismock.NewClientMock()
	idem := NewIdempotency(db, time.Hour, 30*time.Second)

	mock.ExpectSetNX("idempotency:register:k1", pendingMarker, 30*time.Second).SetVal(false)
	mock.ExpectGet("idempotency:register:k1").SetVal(pendingMarker)

	_, err := idem.Begin(context.Background(), "k1")
	assert.ErrorIs(t, err, apperr.ErrInProgress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_Abandon(t *testing.T) {
	db, mock := redismock.NewClientMock()
	idem := NewIdempotency(db, time.Hour, 30*time.Second)

	mock.ExpectDel("idempotency:register:k1").SetVal(1)

	require.NoError(t, idem.Abandon(context.Background(), "k1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
