package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/event-reg-engine/internal/apperr"
)

// pendingMarker is stored while the first request for a key is running.
const pendingMarker = "__pending__"

// Idempotency remembers the result of a request under a client-supplied key.
//
// Begin claims the key with SET NX for a short lease. The holder either
// Completes it with the response body (kept for ttl) or Abandons it so the
// client may retry.
type Idempotency struct {
	client *redis.Client
	ttl    time.Duration
	lease  time.Duration
}

// NewIdempotency returns an Idempotency store.
func NewIdempotency(client *redis.Client, ttl, lease time.Duration) *Idempotency {
	return &Idempotency{client: client, ttl: ttl, lease: lease}
}

func idemKey(key string) string {
	return fmt.Sprintf("idempotency:register:%s", key)
}

// Begin claims key. A nil result with a nil error means the caller owns the
// key and must Complete or Abandon it. A non-nil result is the stored
// response of an earlier request. apperr.ErrInProgress means another request
// holds the lease.
func (i *Idempotency) Begin(ctx context.Context, key string) ([]byte, error) {
	claimed, err := i.client.SetNX(ctx, idemKey(key), pendingMarker, i.lease).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return nil, nil
	}

	stored, err := i.client.Get(ctx, idemKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// The lease expired between SETNX and GET; try once more.
		claimed, err = i.client.SetNX(ctx, idemKey(key), pendingMarker, i.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if claimed {
			return nil, nil
		}
		return nil, apperr.ErrInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if string(stored) == pendingMarker {
		return nil, apperr.ErrInProgress
	}
	return stored, nil
}

// Complete stores result for key.
func (i *Idempotency) Complete(ctx context.Context, key string, result []byte) error {
	if err := i.client.Set(ctx, idemKey(key), string(result), i.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotent result: %w", err)
	}
	return nil
}

// Abandon releases the claim on key.
func (i *Idempotency) Abandon(ctx context.Context, key string) error {
	if err := i.client.Del(ctx, idemKey(key)).Err(); err != nil {
		return fmt.Errorf("abandon idempotency key: %w", err)
	}
	return nil
}
