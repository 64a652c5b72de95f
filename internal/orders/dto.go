package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/types"
)

// SellerID keys per-seller data in a quote.
type SellerID uuid.UUID

func (id SellerID) UUID() uuid.UUID {
	return uuid.UUID(id)
}

func (id SellerID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText lets SellerID key the quote's shipping map in JSON.
func (id SellerID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *SellerID) UnmarshalText(data []byte) error {
	var parsed uuid.UUID
	if err := parsed.UnmarshalText(data); err != nil {
		return err
	}
	*id = SellerID(parsed)
	return nil
}

// QuoteItem is an already priced line of a seller group.
type QuoteItem struct {
	ProductID    string          `json:"product_id" validate:"required"`
	Title        string          `json:"title" validate:"required"`
	VariantLabel *string         `json:"variant_label,omitempty"`
	CategoryPath string          `json:"category_path"`
	Quantity     int             `json:"quantity" validate:"required,min=1"`
	UnitPrice    decimal.Decimal `json:"unit_price" validate:"money"`
	LineTotal    decimal.Decimal `json:"line_total" validate:"money"`
}

// SellerGroup is the part of a quote sold by one seller.
type SellerGroup struct {
	SellerID    SellerID        `json:"seller_id"`
	SellerName  string          `json:"seller_name" validate:"required"`
	SellerEmail string          `json:"seller_email" validate:"required,email"`
	Discount    decimal.Decimal `json:"discount" validate:"money"`
	Items       []QuoteItem     `json:"items" validate:"required,min=1,dive"`
}

// ShippingChoice is the shipping method picked for one seller group.
type ShippingChoice struct {
	Method     string          `json:"method" validate:"required"`
	Cost       decimal.Decimal `json:"cost" validate:"money"`
	ProviderID *string         `json:"provider_id,omitempty"`
}

// Quote is the priced, seller partitioned cart handed over at checkout.
type Quote struct {
	Currency string                      `json:"currency" validate:"omitempty,iso4217"`
	Groups   []SellerGroup               `json:"groups" validate:"required,min=1,dive"`
	Shipping map[SellerID]ShippingChoice `json:"shipping" validate:"required,dive"`
}

// Buyer identifies who placed the order.
type Buyer struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email" validate:"required,email"`
}

// PaymentOutcome is the signed result of the checkout payment.
type PaymentOutcome struct {
	Status    enums.PaymentOutcome `json:"status" validate:"required"`
	Reference string               `json:"reference" validate:"required"`
	Signature string               `json:"signature" validate:"required"`
	Method    string               `json:"method" validate:"required"`
	MethodID  *string              `json:"method_id,omitempty"`
	Message   *string              `json:"message,omitempty"`
}

// EnsureOrderInput bundles everything EnsureOrder needs.
type EnsureOrderInput struct {
	Quote            Quote
	Address          types.Address
	Buyer            Buyer
	PaymentReference string
	Outcome          PaymentOutcome
}

// Actor is the caller on whose behalf an order is read or changed.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// SystemActor is used for provider callbacks and scheduled jobs.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

// TransitionRequest asks the state machine to move a sub-order, or a subset
// of its items, to Target.
type TransitionRequest struct {
	Target         enums.OrderStatus
	ItemIDs        []uuid.UUID
	TrackingNumber *string
	Carrier        *string
	Note           *string
}

// TransitionInput targets a sub-order by id.
type TransitionInput struct {
	SubOrderID uuid.UUID
	Actor      Actor
	Request    TransitionRequest
}

// TransitionResult reports what a transition changed.
type TransitionResult struct {
	From            enums.OrderStatus `json:"from"`
	To              enums.OrderStatus `json:"to"`
	ReleasedToBuyer decimal.Decimal   `json:"released_to_buyer"`
	BecameEligible  bool              `json:"became_eligible"`
	NoOp            bool              `json:"noop"`
}

// ShippingUpdateInput is a carrier status callback.
type ShippingUpdateInput struct {
	ProviderID     string
	Reference      string
	Status         string
	TrackingNumber *string
	Carrier        *string
}

// SubOrderFilters narrow seller and admin sub-order listings.
type SubOrderFilters struct {
	SellerID *uuid.UUID
	BuyerID  *uuid.UUID
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// SubOrderSummary is one row of a seller or admin order listing.
type SubOrderSummary struct {
	SubOrderID       uuid.UUID           `json:"sub_order_id"`
	SubOrderNumber   string              `json:"sub_order_number"`
	OrderID          uuid.UUID           `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	SellerID         uuid.UUID           `json:"seller_id"`
	SellerName       string              `json:"seller_name"`
	BuyerID          uuid.UUID           `json:"buyer_id"`
	BuyerName        string              `json:"buyer_name"`
	Status           enums.OrderStatus   `json:"status"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	ItemsSubtotal    decimal.Decimal     `json:"items_subtotal"`
	ShippingCost     decimal.Decimal     `json:"shipping_cost"`
	DiscountTotal    decimal.Decimal     `json:"discount_total"`
	GrandTotal       decimal.Decimal     `json:"grand_total"`
	Quantity         int                 `json:"quantity"`
	Commission       decimal.Decimal     `json:"commission"`
	SellerPayout     decimal.Decimal     `json:"seller_payout"`
	ReleasedToBuyer  decimal.Decimal     `json:"released_to_buyer"`
	ReleasedToSeller decimal.Decimal     `json:"released_to_seller"`
	PayoutStatus     *enums.PayoutStatus `json:"payout_status,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// SubOrderList wraps paginated sub-orders plus the next page cursor.
type SubOrderList struct {
	SubOrders  []SubOrderSummary `json:"sub_orders"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// BuyerOrderFilters describe the inputs supported by the buyer orders list.
type BuyerOrderFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// BuyerOrderSummary exposes the aggregated fields returned in the buyer list.
type BuyerOrderSummary struct {
	OrderID        uuid.UUID           `json:"order_id"`
	OrderNumber    string              `json:"order_number"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	GrandTotal     decimal.Decimal     `json:"grand_total"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	Quantity       int                 `json:"quantity"`
	SellerCount    int                 `json:"seller_count"`
	CreatedAt      time.Time           `json:"created_at"`
}

// BuyerOrderList wraps the paginated orders plus the next page cursor.
type BuyerOrderList struct {
	Orders     []BuyerOrderSummary `json:"orders"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
