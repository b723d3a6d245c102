package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// A sweep that outlives this is stuck, not slow.
const defaultLockTTL = 30 * time.Minute

// Lock coordinates exclusive job runs across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore is the subset of the redis client the lock needs.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lease with a per-acquisition token, so an expired
// lease taken over by another instance is never released out from under it.
type RedisLock struct {
	store redisStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire attempts to take the lease. False means another instance holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Release deletes the lease, but only while this instance still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}

	holder, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		// Lease already expired.
		l.token = ""
		return nil
	case err != nil:
		return fmt.Errorf("read lock owner: %w", err)
	case holder != l.token:
		// Someone else took over after expiry; leave their lease alone.
		l.token = ""
		return nil
	}

	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.token = ""
	return nil
}
