package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fabricmgmt/eventing-backend/pkg/redis"
)

// Guard is the fast-path duplicate filter in front of the ledger. It
// tracks processed event IDs per consumer in Redis with a TTL. The guard
// is advisory only: a hit still needs ledger confirmation before an event
// may be dropped, and marks are written only after the ledger transaction
// commits, so a stale mark can never outrun the recorded side effects.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a duplicate guard that marks events as seen for the given TTL.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{
		store: store,
		ttl:   ttl,
	}, nil
}

// Seen reports whether the fast path has a mark for the event. A true
// result is a hint, not an answer: the caller must confirm against the
// ledger before skipping side effects.
func (g *Guard) Seen(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := g.seenKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	if _, err := g.store.Get(ctx, key); err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Mark stamps the event as processed. Call only after the ledger
// transaction committed.
func (g *Guard) Mark(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.seenKey(consumer, eventID)
	if err != nil {
		return err
	}
	_, err = g.store.SetNX(ctx, key, "1", g.ttl)
	return err
}

func (g *Guard) seenKey(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("evt:seen:%s", consumer)
	return g.store.IdempotencyKey(scope, eventID.String()), nil
}
