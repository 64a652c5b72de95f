package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// A payout sweep over every seller plus a settlement close must finish inside
// one lease.
const defaultLockTTL = 2 * time.Hour

// ErrLockHeld means another worker holds the lease.
var ErrLockHeld = errors.New("cron lock held by another worker")

// Lock grants one worker at a time the right to move escrow funds.
// TryAcquire returns ErrLockHeld when the lease is taken; otherwise the
// returned func gives the lease back.
type Lock interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, err error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

// RedisLock stores the lease under one key. The value is a token naming the
// holder, so only that holder can delete it.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	host  string
}

func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return &RedisLock{store: store, key: key, ttl: ttl, host: host}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context) (func(context.Context) error, error) {
	token := l.host + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		// a lease that expired and was taken over stays with its new holder
		if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		return nil
	}, nil
}

// Holder names the worker holding the lease, or "" when it is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	token, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("read lock holder: %w", err)
	}
	return token, nil
}
