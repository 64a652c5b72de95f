package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

func TestMockProviderIsDeterministic(t *testing.T) {
	p := &MockProvider{}
	req := ShipmentRequest{SubOrderNumber: "PF-20260302-ABCDEF12-1"}

	first, err := p.RequestShipment(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.RequestShipment(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TrackingNumber != second.TrackingNumber {
		t.Fatalf("tracking differs: %s vs %s", first.TrackingNumber, second.TrackingNumber)
	}
	if string(first.Label) != string(second.Label) {
		t.Fatal("label bytes differ")
	}
	if first.ProviderReference != "mock_pf-20260302-abcdef12-1" {
		t.Fatalf("unexpected reference %q", first.ProviderReference)
	}
	if len(p.Requests) != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", len(p.Requests))
	}
}

func TestMockProviderFailure(t *testing.T) {
	p := &MockProvider{FailWith: errors.New("label service down")}
	if _, err := p.RequestShipment(context.Background(), ShipmentRequest{SubOrderNumber: "X-1"}); err == nil {
		t.Fatal("expected failure")
	}
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(&MockProvider{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Get("mock"); !ok {
		t.Fatal("mock provider not found")
	}
	if _, ok := reg.Get("fedex"); ok {
		t.Fatal("unexpected provider")
	}
	if _, err := NewRegistry(&MockProvider{}, &MockProvider{}); err == nil {
		t.Fatal("expected duplicate ids to fail")
	}
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]enums.OrderStatus{
		"in_transit": enums.OrderStatusShipped,
		"DELIVERED":  enums.OrderStatusDelivered,
		"returned":   enums.OrderStatusCancelled,
		"cancelled":  enums.OrderStatusCancelled,
	}
	for in, want := range cases {
		got, ok := MapProviderStatus(in)
		if !ok || got != want {
			t.Fatalf("MapProviderStatus(%q) = %s,%v want %s", in, got, ok, want)
		}
	}
	if _, ok := MapProviderStatus("label_created"); ok {
		t.Fatal("informational status must not map")
	}
}
