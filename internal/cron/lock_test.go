package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLockKey = "pf:lock:cron-worker:test"

type leaseMap map[string]string

func (m leaseMap) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, taken := m[key]; taken {
		return false, nil
	}
	m[key] = value.(string)
	return true, nil
}

func (m leaseMap) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m leaseMap) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m[key] != expected {
		return false, nil
	}
	delete(m, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := leaseMap{}
	first, err := NewRedisLock(store, testLockKey, 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, testLockKey, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, first.ttl)

	release, err := first.TryAcquire(ctx)
	require.NoError(t, err)

	_, err = second.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	holder, err := second.Holder(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(holder, first.host+"/"), holder)

	require.NoError(t, release(ctx))
	holder, err = second.Holder(ctx)
	require.NoError(t, err)
	assert.Empty(t, holder)

	_, err = second.TryAcquire(ctx)
	assert.NoError(t, err)
}

func TestReleaseLeavesTakenOverLease(t *testing.T) {
	ctx := context.Background()
	store := leaseMap{}
	lock, err := NewRedisLock(store, testLockKey, time.Minute)
	require.NoError(t, err)

	release, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	// lease expired and another worker took it
	store[testLockKey] = "other-host/123"
	require.NoError(t, release(ctx))
	assert.Equal(t, "other-host/123", store[testLockKey])
}

type brokenStore struct{ leaseMap }

func (brokenStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestTryAcquireSurfacesStoreErrors(t *testing.T) {
	lock, err := NewRedisLock(brokenStore{leaseMap{}}, testLockKey, time.Minute)
	require.NoError(t, err)
	_, err = lock.TryAcquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "key", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(leaseMap{}, "", time.Minute)
	assert.Error(t, err)
}
