package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
)

// fakeCommands keeps keys in a map. Eval understands only the
// compare-and-delete script.
type fakeCommands struct {
	data    map[string]string
	counter map[string]int64
	expires map[string]time.Duration
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: map[string]string{}, counter: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counter[key]++
	return redis.NewIntResult(f.counter[key], nil)
}

func (f *fakeCommands) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script != compareAndDelete {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	if f.data[keys[0]] == args[0] {
		delete(f.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestIncrWithTTLStartsWindowOnce(t *testing.T) {
	fake := newFakeCommands()
	c := &Client{cmd: fake}
	key := Key("rl", "webhooks", "10.0.0.1")

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrWithTTL(context.Background(), key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, time.Minute, fake.expires[key])

	delete(fake.expires, key)
	_, err := c.IncrWithTTL(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.NotContains(t, fake.expires, key, "later increments keep the window")
}

func TestSetNXGetDel(t *testing.T) {
	c := &Client{cmd: newFakeCommands()}
	ctx := context.Background()
	key := c.IdempotencyKey("evt:processed:stripe-webhook", "evt_1")

	won, err := c.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = c.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, c.Del(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndDelete(t *testing.T) {
	fake := newFakeCommands()
	c := &Client{cmd: fake}
	ctx := context.Background()
	fake.data["pf:lock:cron-worker:prod"] = "host-a/1"

	deleted, err := c.CompareAndDelete(ctx, "pf:lock:cron-worker:prod", "host-b/2")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Contains(t, fake.data, "pf:lock:cron-worker:prod")

	deleted, err = c.CompareAndDelete(ctx, "pf:lock:cron-worker:prod", "host-a/1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, fake.data)
}

func TestKeys(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "pf:idempotency:scope:id", c.IdempotencyKey("scope", "id"))
	assert.Equal(t, "pf:lock:cron:prod", c.LockKey("cron", "prod"))
	assert.Equal(t, "pf:lock:cron:local", c.LockKey("cron", ""))
	assert.Equal(t, "pf:a:b", Key(" a ", "", "b"))
}

func TestOptionsKeepURLSettings(t *testing.T) {
	opts, err := options(config.RedisConfig{
		URL:         "redis://:pw@cache.internal:6380/3?dial_timeout=2s",
		DB:          0,
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	_, err = options(config.RedisConfig{})
	assert.Error(t, err)
}

func TestUnconnectedClient(t *testing.T) {
	c := &Client{}
	assert.Error(t, c.Ping(context.Background()))
	_, err := c.CompareAndDelete(context.Background(), "k", "v")
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}
