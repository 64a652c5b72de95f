package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// OrderCreatedEvent signals a checkout that was persisted as an order.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	OrderNumber      string            `json:"order_number"`
	BuyerID          uuid.UUID         `json:"buyer_id"`
	PaymentReference string            `json:"payment_reference"`
	Status           enums.OrderStatus `json:"status"`
	GrandTotal       decimal.Decimal   `json:"grand_total"`
	SubOrderIDs      []uuid.UUID       `json:"sub_order_ids"`
}

// SubOrderStatusChangedEvent is emitted for every state machine transition.
type SubOrderStatusChangedEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	SubOrderID      uuid.UUID         `json:"sub_order_id"`
	SubOrderNumber  string            `json:"sub_order_number"`
	SellerID        uuid.UUID         `json:"seller_id"`
	From            enums.OrderStatus `json:"from"`
	To              enums.OrderStatus `json:"to"`
	Requested       enums.OrderStatus `json:"requested"`
	ItemIDs         []uuid.UUID       `json:"item_ids,omitempty"`
	ReleasedToBuyer decimal.Decimal   `json:"released_to_buyer"`
	PayoutEligible  bool              `json:"payout_eligible"`
}

// PaymentStatusChangedEvent reports a provider payment update applied to an order.
type PaymentStatusChangedEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	PaymentReference string              `json:"payment_reference"`
	From             enums.PaymentStatus `json:"from"`
	To               enums.PaymentStatus `json:"to"`
	RefundedAmount   decimal.Decimal     `json:"refunded_amount"`
	RefundDelta      decimal.Decimal     `json:"refund_delta"`
}

// PayoutCompletedEvent is emitted once a transfer to the seller succeeded.
type PayoutCompletedEvent struct {
	RunID             uuid.UUID       `json:"run_id"`
	SellerID          uuid.UUID       `json:"seller_id"`
	Amount            decimal.Decimal `json:"amount"`
	AllocationIDs     []uuid.UUID     `json:"allocation_ids"`
	ProviderReference string          `json:"provider_reference"`
}

// PayoutFailedEvent is emitted when the transfer was rejected downstream.
type PayoutFailedEvent struct {
	RunID         uuid.UUID       `json:"run_id"`
	SellerID      uuid.UUID       `json:"seller_id"`
	Amount        decimal.Decimal `json:"amount"`
	AllocationIDs []uuid.UUID     `json:"allocation_ids"`
	Reason        string          `json:"reason"`
}

// ReturnCaseEvent covers case opening, updates and resolution.
type ReturnCaseEvent struct {
	CaseID       uuid.UUID                `json:"case_id"`
	CaseNumber   string                   `json:"case_number"`
	OrderID      uuid.UUID                `json:"order_id"`
	SubOrderID   uuid.UUID                `json:"sub_order_id"`
	BuyerID      uuid.UUID                `json:"buyer_id"`
	SellerID     uuid.UUID                `json:"seller_id"`
	Type         enums.ReturnCaseType     `json:"type"`
	Status       enums.ReturnCaseStatus   `json:"status"`
	Outcome      *enums.ReturnCaseOutcome `json:"outcome,omitempty"`
	RefundAmount *decimal.Decimal         `json:"refund_amount,omitempty"`
	ActorRole    enums.ActorRole          `json:"actor_role"`
	OccurredAt   time.Time                `json:"occurred_at"`
}

// InvoiceIssuedEvent announces a new monthly commission invoice.
type InvoiceIssuedEvent struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	SellerID      uuid.UUID       `json:"seller_id"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// NotificationRequestedEvent asks the delivery pipeline to send a message.
type NotificationRequestedEvent struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Template string `json:"template,omitempty"`
}
