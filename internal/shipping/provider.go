package shipping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/types"
)

// ShipmentItem is the part of an order line a carrier needs.
type ShipmentItem struct {
	Title    string
	Quantity int
}

// ShipmentRequest describes one sub-order handed to a carrier integration.
type ShipmentRequest struct {
	SubOrderNumber string
	SellerName     string
	Method         string
	Address        types.Address
	Items          []ShipmentItem
}

// Shipment is what an integrated provider returns for a request.
type Shipment struct {
	TrackingNumber    string
	Carrier           string
	Label             []byte
	ProviderReference string
}

// Provider is an integrated shipping carrier.
type Provider interface {
	ID() string
	RequestShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error)
}

// Registry resolves providers by id.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry indexes the given providers; ids must be unique.
func NewRegistry(providers ...Provider) (*Registry, error) {
	reg := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("nil shipping provider")
		}
		id := strings.TrimSpace(p.ID())
		if id == "" {
			return nil, fmt.Errorf("shipping provider id required")
		}
		if _, exists := reg.providers[id]; exists {
			return nil, fmt.Errorf("duplicate shipping provider %q", id)
		}
		reg.providers[id] = p
	}
	return reg, nil
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[strings.TrimSpace(id)]
	return p, ok
}

// IDs lists registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MapProviderStatus translates a carrier tracking status into the sub-order
// status it implies. Unknown or informational statuses report false.
func MapProviderStatus(status string) (enums.OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "in_transit", "shipped", "transit", "out_for_delivery":
		return enums.OrderStatusShipped, true
	case "delivered":
		return enums.OrderStatusDelivered, true
	case "returned", "return_to_sender", "cancelled", "canceled":
		return enums.OrderStatusCancelled, true
	default:
		return "", false
	}
}
