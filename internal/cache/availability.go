package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/model"
)

// Availability caches TicketTier snapshots keyed by tier id.
type Availability struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailability returns an Availability cache with entries living for ttl.
func NewAvailability(client *redis.Client, ttl time.Duration) *Availability {
	return &Availability{client: client, ttl: ttl}
}

func tierKey(tierID string) string {
	return fmt.Sprintf("availability:tier:%s", tierID)
}

// GetTier returns the cached tier, or ok=false on a miss.
func (a *Availability) GetTier(ctx context.Context, tierID string) (*model.TicketTier, bool, error) {
	data, err := a.client.Get(ctx, tierKey(tierID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached tier: %w", err)
	}

	var tier model.TicketTier
	if err := json.Unmarshal(data, &tier); err != nil {
		// A corrupt entry is treated as a miss; the next SetTier overwrites it.
		return nil, false, nil
	}
	return &tier, true, nil
}

// SetTier stores a snapshot of tier.
func (a *Availability) SetTier(ctx context.Context, tier *model.TicketTier) error {
	data, err := json.Marshal(tier)
	if err != nil {
		return fmt.Errorf("marshal tier: %w", err)
	}
	if err := a.client.Set(ctx, tierKey(tier.ID), string(data), a.ttl).Err(); err != nil {
		return fmt.Errorf("cache tier: %w", err)
	}
	return nil
}

// InvalidateTier drops the cached snapshot for tierID.
func (a *Availability) InvalidateTier(ctx context.Context, tierID string) error {
	if err := a.client.Del(ctx, tierKey(tierID)).Err(); err != nil {
		return fmt.Errorf("invalidate tier: %w", err)
	}
	return nil
}
