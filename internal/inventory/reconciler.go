package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// OrphanFinder lists units that are still held but have no live registration.
type OrphanFinder interface {
	OrphanedUnits(ctx context.Context, issuedBefore time.Time, limit int) ([]model.TicketUnit, error)
}

// HistoryAppender appends an audit entry.
type HistoryAppender interface {
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
}

// ReconcilerActor is recorded on history entries written by the sweep.
const ReconcilerActor = "reconciler"

// Reconciler periodically releases units whose registration never completed
// (or was cancelled without its release landing) within a grace window.
type Reconciler struct {
	alloc    *Allocator
	finder   OrphanFinder
	history  HistoryAppender
	grace    time.Duration
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewReconciler constructs a Reconciler. grace must exceed the longest
// registration request so in-flight units are never reclaimed.
func NewReconciler(alloc *Allocator, finder OrphanFinder, history HistoryAppender, grace, interval time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		alloc:    alloc,
		finder:   finder,
		history:  history,
		grace:    grace,
		interval: interval,
		batch:    100,
		logger:   logger,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.logger.Error("reconciliation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info("reclaimed orphaned ticket units", "count", n)
			}
		}
	}
}

// Sweep releases one batch of orphaned units and returns how many were
// actually released. Failures on individual units are logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.alloc.now().Add(-r.grace)
	units, err := r.finder.OrphanedUnits(ctx, cutoff, r.batch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, u := range units {
		ok, err := r.alloc.release(ctx, u.TierID, u.Token)
		if err != nil {
			r.logger.Error("can't reclaim ticket unit", "tier_id", u.TierID, "token", u.Token, "error", err)
			continue
		}
		if !ok {
			continue
		}
		released++
		r.alloc.metrics.ReconciledUnits.Inc()

		entry := model.HistoryEntry{
			EntityType: model.EntityTicketUnit,
			EntityID:   string(u.Token),
			FromState:  model.UnitIssued,
			ToState:    model.UnitReclaimed,
			Actor:      ReconcilerActor,
			Timestamp:  r.alloc.now(),
		}
		if err := r.history.AppendHistory(ctx, entry); err != nil {
			r.logger.Warn("can't record reclaimed unit", "token", u.Token, "error", err)
		}
	}
	return released, nil
}
