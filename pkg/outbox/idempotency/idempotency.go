// Package idempotency remembers which external event ids a consumer has
// already applied, so redelivered webhooks and Pub/Sub messages are no-ops.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the subset of the Redis client a Guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard marks event ids per consumer. Marks expire after ttl; a zero ttl
// keeps them forever.
type Guard struct {
	store Store
	scope string
	ttl   time.Duration
	now   func() time.Time
}

func NewGuard(store Store, consumer string, ttl time.Duration) (*Guard, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, scope: "evt:processed:" + consumer, ttl: ttl, now: time.Now}, nil
}

// MarkSeen records eventID and reports whether it was already recorded. The
// value kept is the time of the first delivery.
func (g *Guard) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	fresh, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", eventID, err)
	}
	return !fresh, nil
}

// Forget drops the mark so a delivery whose handling failed can be retried.
func (g *Guard) Forget(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(eventID string) (string, error) {
	if strings.TrimSpace(eventID) == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
