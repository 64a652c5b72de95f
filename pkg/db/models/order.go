package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/types"
)

// Order is the buyer-facing aggregate created from one confirmed checkout.
// Every mutation of its sub-orders, allocations or ledgers bumps Version.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	BuyerID          uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index:idx_orders_buyer_created"`
	BuyerName        string              `gorm:"column:buyer_name;not null"`
	BuyerEmail       string              `gorm:"column:buyer_email;not null"`
	PaymentMethod    string              `gorm:"column:payment_method;not null"`
	PaymentMethodID  *string             `gorm:"column:payment_method_id"`
	PaymentReference string              `gorm:"column:payment_reference;not null;uniqueIndex:ux_orders_payment_reference"`
	Currency         string              `gorm:"column:currency;not null"`
	ItemsSubtotal    decimal.Decimal     `gorm:"column:items_subtotal;type:numeric(12,2);not null"`
	ShippingTotal    decimal.Decimal     `gorm:"column:shipping_total;type:numeric(12,2);not null"`
	DiscountTotal    decimal.Decimal     `gorm:"column:discount_total;type:numeric(12,2);not null"`
	GrandTotal       decimal.Decimal     `gorm:"column:grand_total;type:numeric(12,2);not null"`
	Quantity         int                 `gorm:"column:quantity;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	PaymentMessage   *string             `gorm:"column:payment_message"`
	RefundedAmount   decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(12,2);not null"`
	ShippingAddress  types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Version          int64               `gorm:"column:version;not null"`
	SubOrders        []SubOrder          `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time           `gorm:"column:created_at;index:idx_orders_buyer_created"`
	UpdatedAt        time.Time           `gorm:"column:updated_at"`
}

// SubOrder is the slice of an order owned by one seller. It is the unit of
// shipping, status and escrow.
type SubOrder struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	SubOrderNumber      string                  `gorm:"column:sub_order_number;not null;uniqueIndex:ux_sub_orders_number"`
	Sequence            int                     `gorm:"column:sequence;not null"`
	SellerID            uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index:idx_sub_orders_seller_created"`
	SellerName          string                  `gorm:"column:seller_name;not null"`
	SellerEmail         string                  `gorm:"column:seller_email;not null"`
	ItemsSubtotal       decimal.Decimal         `gorm:"column:items_subtotal;type:numeric(12,2);not null"`
	ShippingMethod      string                  `gorm:"column:shipping_method;not null"`
	ShippingCost        decimal.Decimal         `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	DiscountTotal       decimal.Decimal         `gorm:"column:discount_total;type:numeric(12,2);not null"`
	GrandTotal          decimal.Decimal         `gorm:"column:grand_total;type:numeric(12,2);not null"`
	Quantity            int                     `gorm:"column:quantity;not null"`
	Status              enums.OrderStatus       `gorm:"column:status;type:text;not null"`
	ShippingProviderID  *string                 `gorm:"column:shipping_provider_id"`
	ShippingProviderRef *string                 `gorm:"column:shipping_provider_ref;index"`
	TrackingNumber      *string                 `gorm:"column:tracking_number"`
	Carrier             *string                 `gorm:"column:carrier"`
	CarrierLabel        []byte                  `gorm:"column:carrier_label"`
	ShippedAt           *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time              `gorm:"column:delivered_at"`
	Items               []OrderItem             `gorm:"foreignKey:SubOrderID"`
	History             []SubOrderStatusHistory `gorm:"foreignKey:SubOrderID"`
	Allocation          *EscrowAllocation       `gorm:"foreignKey:SubOrderID"`
	CreatedAt           time.Time               `gorm:"column:created_at;index:idx_sub_orders_seller_created"`
	UpdatedAt           time.Time               `gorm:"column:updated_at"`
}

// OrderItem is one priced line of a sub-order. Its status can run ahead of
// or behind the other items of the same sub-order.
type OrderItem struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SubOrderID   uuid.UUID         `gorm:"column:sub_order_id;type:uuid;not null;index"`
	OrderID      uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID     uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	Position     int               `gorm:"column:position;not null"`
	ProductID    string            `gorm:"column:product_id;not null;index"`
	Title        string            `gorm:"column:title;not null"`
	VariantLabel *string           `gorm:"column:variant_label"`
	CategoryPath string            `gorm:"column:category_path"`
	Quantity     int               `gorm:"column:quantity;not null"`
	UnitPrice    decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal    decimal.Decimal   `gorm:"column:line_total;type:numeric(12,2);not null"`
	Status       enums.OrderStatus `gorm:"column:status;type:text;not null"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
}

// SubOrderStatusHistory is the append-only transition log of a sub-order.
type SubOrderStatusHistory struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SubOrderID     uuid.UUID         `gorm:"column:sub_order_id;type:uuid;not null;index"`
	Sequence       int               `gorm:"column:sequence;not null"`
	Status         enums.OrderStatus `gorm:"column:status;type:text;not null"`
	ItemIDs        []uuid.UUID       `gorm:"column:item_ids;type:jsonb;serializer:json"`
	TrackingNumber *string           `gorm:"column:tracking_number"`
	Carrier        *string           `gorm:"column:carrier"`
	Note           *string           `gorm:"column:note"`
	ActorRole      enums.ActorRole   `gorm:"column:actor_role;type:text;not null"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
}

func (SubOrderStatusHistory) TableName() string {
	return "sub_order_status_history"
}
