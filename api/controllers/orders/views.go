package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/types"
)

type orderView struct {
	ID               uuid.UUID           `json:"id"`
	OrderNumber      string              `json:"order_number"`
	BuyerID          uuid.UUID           `json:"buyer_id"`
	BuyerName        string              `json:"buyer_name"`
	PaymentReference string              `json:"payment_reference"`
	PaymentMethod    string              `json:"payment_method"`
	Currency         string              `json:"currency"`
	ItemsSubtotal    decimal.Decimal     `json:"items_subtotal"`
	ShippingTotal    decimal.Decimal     `json:"shipping_total"`
	DiscountTotal    decimal.Decimal     `json:"discount_total"`
	GrandTotal       decimal.Decimal     `json:"grand_total"`
	Quantity         int                 `json:"quantity"`
	Status           enums.OrderStatus   `json:"status"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	RefundedAmount   decimal.Decimal     `json:"refunded_amount"`
	ShippingAddress  types.Address       `json:"shipping_address"`
	SubOrders        []subOrderView      `json:"sub_orders"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type subOrderView struct {
	ID             uuid.UUID         `json:"id"`
	SubOrderNumber string            `json:"sub_order_number"`
	SellerID       uuid.UUID         `json:"seller_id"`
	SellerName     string            `json:"seller_name"`
	Status         enums.OrderStatus `json:"status"`
	ItemsSubtotal  decimal.Decimal   `json:"items_subtotal"`
	ShippingMethod string            `json:"shipping_method"`
	ShippingCost   decimal.Decimal   `json:"shipping_cost"`
	DiscountTotal  decimal.Decimal   `json:"discount_total"`
	GrandTotal     decimal.Decimal   `json:"grand_total"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
	Carrier        *string           `json:"carrier,omitempty"`
	ShippedAt      *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	Items          []itemView        `json:"items"`
	History        []historyView     `json:"history"`
	Escrow         *escrowView       `json:"escrow,omitempty"`
}

type itemView struct {
	ID           uuid.UUID         `json:"id"`
	ProductID    string            `json:"product_id"`
	Title        string            `json:"title"`
	VariantLabel *string           `json:"variant_label,omitempty"`
	Quantity     int               `json:"quantity"`
	UnitPrice    decimal.Decimal   `json:"unit_price"`
	LineTotal    decimal.Decimal   `json:"line_total"`
	Status       enums.OrderStatus `json:"status"`
}

type historyView struct {
	Status         enums.OrderStatus `json:"status"`
	ItemIDs        []uuid.UUID       `json:"item_ids,omitempty"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
	Note           *string           `json:"note,omitempty"`
	ActorRole      enums.ActorRole   `json:"actor_role"`
	CreatedAt      time.Time         `json:"created_at"`
}

// escrowView is only filled for sellers and admins.
type escrowView struct {
	HeldAmount       decimal.Decimal    `json:"held_amount"`
	CommissionRate   decimal.Decimal    `json:"commission_rate"`
	CommissionAmount decimal.Decimal    `json:"commission_amount"`
	SellerPayout     decimal.Decimal    `json:"seller_payout"`
	ReleasedToBuyer  decimal.Decimal    `json:"released_to_buyer"`
	ReleasedToSeller decimal.Decimal    `json:"released_to_seller"`
	PayoutEligible   bool               `json:"payout_eligible"`
	PayoutStatus     enums.PayoutStatus `json:"payout_status"`
}

func newOrderView(order *models.Order, role enums.ActorRole) orderView {
	view := orderView{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		BuyerID:          order.BuyerID,
		BuyerName:        order.BuyerName,
		PaymentReference: order.PaymentReference,
		PaymentMethod:    order.PaymentMethod,
		Currency:         order.Currency,
		ItemsSubtotal:    order.ItemsSubtotal,
		ShippingTotal:    order.ShippingTotal,
		DiscountTotal:    order.DiscountTotal,
		GrandTotal:       order.GrandTotal,
		Quantity:         order.Quantity,
		Status:           order.Status,
		PaymentStatus:    order.PaymentStatus,
		RefundedAmount:   order.RefundedAmount,
		ShippingAddress:  order.ShippingAddress,
		SubOrders:        make([]subOrderView, 0, len(order.SubOrders)),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for i := range order.SubOrders {
		view.SubOrders = append(view.SubOrders, newSubOrderView(&order.SubOrders[i], role))
	}
	return view
}

func newSubOrderView(sub *models.SubOrder, role enums.ActorRole) subOrderView {
	view := subOrderView{
		ID:             sub.ID,
		SubOrderNumber: sub.SubOrderNumber,
		SellerID:       sub.SellerID,
		SellerName:     sub.SellerName,
		Status:         sub.Status,
		ItemsSubtotal:  sub.ItemsSubtotal,
		ShippingMethod: sub.ShippingMethod,
		ShippingCost:   sub.ShippingCost,
		DiscountTotal:  sub.DiscountTotal,
		GrandTotal:     sub.GrandTotal,
		TrackingNumber: sub.TrackingNumber,
		Carrier:        sub.Carrier,
		ShippedAt:      sub.ShippedAt,
		DeliveredAt:    sub.DeliveredAt,
		Items:          make([]itemView, 0, len(sub.Items)),
		History:        make([]historyView, 0, len(sub.History)),
	}
	for _, item := range sub.Items {
		view.Items = append(view.Items, itemView{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Title:        item.Title,
			VariantLabel: item.VariantLabel,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
			Status:       item.Status,
		})
	}
	for _, h := range sub.History {
		view.History = append(view.History, historyView{
			Status:         h.Status,
			ItemIDs:        h.ItemIDs,
			TrackingNumber: h.TrackingNumber,
			Note:           h.Note,
			ActorRole:      h.ActorRole,
			CreatedAt:      h.CreatedAt,
		})
	}
	if a := sub.Allocation; a != nil && role != enums.ActorRoleBuyer {
		view.Escrow = &escrowView{
			HeldAmount:       a.HeldAmount,
			CommissionRate:   a.CommissionRate,
			CommissionAmount: a.CommissionAmount,
			SellerPayout:     a.SellerPayoutAmount,
			ReleasedToBuyer:  a.ReleasedToBuyer,
			ReleasedToSeller: a.ReleasedToSeller,
			PayoutEligible:   a.PayoutEligible,
			PayoutStatus:     a.PayoutStatus,
		}
	}
	return view
}
