// Package orderstest builds an orders service over a test database together
// with recording collaborators and a canned two-seller checkout.
package orderstest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/notifications"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/internal/shipping"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/types"
)

// Secret signs payment outcomes in tests.
const Secret = "test-outcome-secret"

var (
	SellerA = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	SellerB = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	BuyerID = uuid.MustParse("cccccccc-0000-0000-0000-000000000003")
)

// RecordingOutbox keeps emitted events in memory.
type RecordingOutbox struct {
	mu     sync.Mutex
	Events []outbox.DomainEvent
}

func (r *RecordingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
	return nil
}

// OfType filters recorded events.
func (r *RecordingOutbox) OfType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.DomainEvent
	for _, event := range r.Events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

// RecordingNotifier keeps queued messages in memory.
type RecordingNotifier struct {
	mu       sync.Mutex
	Messages []notifications.Message
}

func (r *RecordingNotifier) Send(ctx context.Context, tx *gorm.DB, msg notifications.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, msg)
	return nil
}

// Templates lists the template of every queued message in order.
func (r *RecordingNotifier) Templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Messages))
	for _, msg := range r.Messages {
		out = append(out, msg.Template)
	}
	return out
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Harness bundles a service with the collaborators tests inspect.
type Harness struct {
	Service  orders.Service
	Repo     orders.Repository
	Outbox   *RecordingOutbox
	Notifier *RecordingNotifier
	Carrier  *shipping.MockProvider
	Verifier *orders.HMACVerifier
	Clock    *Clock
}

// New wires an orders service over the given client.
func New(t *testing.T, client *db.Client) *Harness {
	t.Helper()

	verifier, err := orders.NewHMACVerifier(Secret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	carrier := &shipping.MockProvider{}
	registry, err := shipping.NewRegistry(carrier)
	if err != nil {
		t.Fatalf("shipping registry: %v", err)
	}
	h := &Harness{
		Repo:     orders.NewRepository(client.DB()),
		Outbox:   &RecordingOutbox{},
		Notifier: &RecordingNotifier{},
		Carrier:  carrier,
		Verifier: verifier,
		Clock:    NewClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)),
	}
	svc, err := orders.NewService(orders.ServiceParams{
		Repo:     h.Repo,
		Tx:       client,
		Outbox:   h.Outbox,
		Notifier: h.Notifier,
		Shipping: registry,
		Verifier: verifier,
		Config: orders.Config{
			Currency:               "USD",
			CommissionRate:         decimal.RequireFromString("0.10"),
			PayoutEligibleStatuses: []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered},
			OrderNumberPrefix:      "PF",
		},
		Now: h.Clock.Now,
	})
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	h.Service = svc
	return h
}

// CheckoutInput is a signed checkout with two sellers.
//
// Seller A sells 2 x 6.00 and 1 x 16.00 with a 3.00 discount and 5.00
// shipping, 30.00 in total. Seller B sells 1 x 25.00 shipped for free
// through the mock carrier.
func (h *Harness) CheckoutInput(reference string, status enums.PaymentOutcome) orders.EnsureOrderInput {
	mock := shipping.MockProviderID
	outcome := orders.PaymentOutcome{
		Status:    status,
		Reference: reference,
		Method:    "card",
	}
	outcome.Signature = h.Verifier.Sign(outcome)
	return orders.EnsureOrderInput{
		Quote: orders.Quote{
			Currency: "USD",
			Groups: []orders.SellerGroup{
				{
					SellerID:    orders.SellerID(SellerA),
					SellerName:  "Seller A",
					SellerEmail: "a@sellers.test",
					Discount:    decimal.RequireFromString("3"),
					Items: []orders.QuoteItem{
						{ProductID: "sku-widget", Title: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("6"), LineTotal: decimal.RequireFromString("12")},
						{ProductID: "sku-gadget", Title: "Gadget", Quantity: 1, UnitPrice: decimal.RequireFromString("16"), LineTotal: decimal.RequireFromString("16")},
					},
				},
				{
					SellerID:    orders.SellerID(SellerB),
					SellerName:  "Seller B",
					SellerEmail: "b@sellers.test",
					Items: []orders.QuoteItem{
						{ProductID: "sku-lamp", Title: "Lamp", Quantity: 1, UnitPrice: decimal.RequireFromString("25"), LineTotal: decimal.RequireFromString("25")},
					},
				},
			},
			Shipping: map[orders.SellerID]orders.ShippingChoice{
				orders.SellerID(SellerA): {Method: "standard", Cost: decimal.RequireFromString("5")},
				orders.SellerID(SellerB): {Method: "express", Cost: decimal.Zero, ProviderID: &mock},
			},
		},
		Address: types.Address{
			Name:       "Ada Buyer",
			Line1:      "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62701",
			Country:    "US",
		},
		Buyer:            orders.Buyer{ID: BuyerID, Name: "Ada Buyer", Email: "ada@buyers.test"},
		PaymentReference: reference,
		Outcome:          outcome,
	}
}

// PlaceOrder runs a confirmed checkout and fails the test on error.
func (h *Harness) PlaceOrder(t *testing.T, reference string) *models.Order {
	t.Helper()
	order, _, err := h.Service.EnsureOrder(context.Background(), h.CheckoutInput(reference, enums.PaymentOutcomeConfirmed))
	if err != nil {
		t.Fatalf("ensure order: %v", err)
	}
	return order
}
