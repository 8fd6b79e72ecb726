// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the store layer.
//
// Each state machine is its own service. None of them holds a lock: every
// transition is a conditional write in the store, and the services only
// sequence those writes and compensate when a later step fails.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/metrics"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-engine/internal/notify"
)

// Actors recorded on history entries written without a request.
const (
	ActorAnonymous = "anonymous"
	ActorSystem    = "system"
)

// Allocator reserves and releases ticket tier capacity.
type Allocator interface {
	Reserve(ctx context.Context, tierID string) (model.UnitToken, error)
	Release(ctx context.Context, tierID string, token model.UnitToken) error
}

// Idempotency stores the outcome of a request under a client key.
type Idempotency interface {
	Begin(ctx context.Context, key string) ([]byte, error)
	Complete(ctx context.Context, key string, result []byte) error
	Abandon(ctx context.Context, key string) error
}

// TierCache is a read-through cache of tier availability.
type TierCache interface {
	GetTier(ctx context.Context, tierID string) (*model.TicketTier, bool, error)
	SetTier(ctx context.Context, tier *model.TicketTier) error
}

// Options are the optional collaborators shared by all services.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Clock    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Discard()
	}
	if o.Notifier == nil {
		o.Notifier = notify.Discard{}
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

func actorOrDefault(actor string) string {
	if actor = strings.TrimSpace(actor); actor == "" {
		return ActorAnonymous
	}
	return actor
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
