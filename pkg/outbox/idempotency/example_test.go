package idempotency_test

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/idempotency"
)

type mapStore map[string]bool

func (m mapStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m[key] {
		return false, nil
	}
	m[key] = true
	return true, nil
}

func (m mapStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (mapStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func ExampleGuard_MarkSeen() {
	guard, _ := idempotency.NewGuard(mapStore{}, "stripe-webhook", 7*24*time.Hour)
	for range 2 {
		if seen, _ := guard.MarkSeen(context.Background(), "evt_3MtwBwLkdIwHu7ix28a3tqPa"); seen {
			fmt.Println("already processed")
			continue
		}
		fmt.Println("processing event")
	}
	// Output:
	// processing event
	// already processed
}
