// Package inventory reserves and releases units of ticket tier capacity.
//
// The allocator holds no lock and no counter of its own. Every Reserve is a
// single conditional decrement in the store (remaining_capacity > 0) issued
// together with the unit-token insert, so any number of goroutines or
// process instances can call it against the same tier and the number of
// successes never exceeds the tier's total capacity.
package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/metrics"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// UnitStore is the storage primitive behind the allocator.
//
// ReserveUnit must decrement remaining capacity and record token in one
// atomic step, returning apperr.ErrSoldOut when nothing remains and
// apperr.ErrNotFound for an unknown tier.
//
// ReleaseUnit must mark token released and increment remaining capacity in
// one atomic step. It reports false for a token that was already released
// and returns apperr.ErrInvariantViolation for a token it never issued or an
// increment that would exceed total capacity.
type UnitStore interface {
	ReserveUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) error
	ReleaseUnit(ctx context.Context, tierID string, token model.UnitToken, at time.Time) (bool, error)
}

// Invalidator drops cached availability for a tier after it changes.
type Invalidator interface {
	InvalidateTier(ctx context.Context, tierID string) error
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateTier(context.Context, string) error { return nil }

// Allocator is the only writer of a tier's remaining capacity.
type Allocator struct {
	store    UnitStore
	cache    Invalidator
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	newToken func() model.UnitToken
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithInvalidator sets the availability cache to invalidate after changes.
func WithInvalidator(c Invalidator) Option {
	return func(a *Allocator) {
		if c != nil {
			a.cache = c
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// NewAllocator constructs an Allocator over store.
func NewAllocator(store UnitStore, opts ...Option) *Allocator {
	a := &Allocator{
		store:   store,
		cache:   noopInvalidator{},
		metrics: metrics.Discard(),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		newToken: func() model.UnitToken {
			return model.UnitToken(uuid.NewString())
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reserve takes one unit of tierID's capacity and returns its token.
// Exhaustion is reported as apperr.ErrSoldOut and leaves the tier untouched.
func (a *Allocator) Reserve(ctx context.Context, tierID string) (model.UnitToken, error) {
	token := a.newToken()

	start := time.Now()
	err := a.store.ReserveUnit(ctx, tierID, token, a.now())
	a.metrics.StoreLatency.WithLabelValues("reserve").Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		a.metrics.Reservations.WithLabelValues("ok").Inc()
		a.invalidate(ctx, tierID)
		a.logger.Debug("reserved ticket unit", "tier_id", tierID, "token", token)
		return token, nil
	case errors.Is(err, apperr.ErrSoldOut):
		a.metrics.Reservations.WithLabelValues("sold_out").Inc()
		return "", err
	case errors.Is(err, apperr.ErrNotFound):
		a.metrics.Reservations.WithLabelValues("not_found").Inc()
		return "", err
	default:
		a.metrics.Reservations.WithLabelValues("error").Inc()
		return "", apperr.Store("reserve unit", err)
	}
}

// Release returns token's unit to tierID. Releasing an already released
// token is a no-op.
func (a *Allocator) Release(ctx context.Context, tierID string, token model.UnitToken) error {
	_, err := a.release(ctx, tierID, token)
	return err
}

func (a *Allocator) release(ctx context.Context, tierID string, token model.UnitToken) (bool, error) {
	start := time.Now()
	released, err := a.store.ReleaseUnit(ctx, tierID, token, a.now())
	a.metrics.StoreLatency.WithLabelValues("release").Observe(time.Since(start).Seconds())

	switch {
	case err == nil && released:
		a.metrics.Releases.WithLabelValues("ok").Inc()
		a.invalidate(ctx, tierID)
		a.logger.Debug("released ticket unit", "tier_id", tierID, "token", token)
		return true, nil
	case err == nil:
		a.metrics.Releases.WithLabelValues("noop").Inc()
		return false, nil
	case errors.Is(err, apperr.ErrInvariantViolation):
		a.metrics.Releases.WithLabelValues("invariant").Inc()
		a.metrics.InvariantViolations.Inc()
		a.logger.Error("capacity invariant violated on release",
			"tier_id", tierID, "token", token, "error", err)
		return false, err
	default:
		a.metrics.Releases.WithLabelValues("error").Inc()
		return false, apperr.Store("release unit", err)
	}
}

func (a *Allocator) invalidate(ctx context.Context, tierID string) {
	if err := a.cache.InvalidateTier(ctx, tierID); err != nil {
		a.logger.Warn("can't invalidate tier availability", "tier_id", tierID, "error", err)
	}
}
