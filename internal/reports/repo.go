package reports

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// OrderFilters narrow order exports and commission summaries.
type OrderFilters struct {
	SellerID *uuid.UUID
	BuyerID  *uuid.UUID
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// OrderRow is one sub-order with its escrow figures.
type OrderRow struct {
	SubOrderID       uuid.UUID
	SubOrderNumber   string
	OrderNumber      string
	SellerID         uuid.UUID
	SellerName       string
	BuyerID          uuid.UUID
	BuyerName        string
	Status           enums.OrderStatus
	PaymentStatus    enums.PaymentStatus
	Quantity         int
	ItemsSubtotal    decimal.Decimal
	ShippingCost     decimal.Decimal
	DiscountTotal    decimal.Decimal
	GrandTotal       decimal.Decimal
	Commission       decimal.NullDecimal
	SellerPayout     decimal.NullDecimal
	ReleasedToBuyer  decimal.NullDecimal
	ReleasedToSeller decimal.NullDecimal
	PayoutStatus     *enums.PayoutStatus
	CreatedAt        time.Time
}

// SalesRow is one order item considered by the sales series.
type SalesRow struct {
	SubOrderID uuid.UUID
	Quantity   int
	LineTotal  decimal.Decimal
	CreatedAt  time.Time
}

// CommissionRow aggregates the escrow of one seller's sub-orders.
type CommissionRow struct {
	SellerID         uuid.UUID
	SellerName       string
	OrderCount       int
	Gross            decimal.Decimal
	Commission       decimal.Decimal
	SellerPayout     decimal.Decimal
	ReleasedToBuyer  decimal.Decimal
	ReleasedToSeller decimal.Decimal
}

// SalesFilters narrow the sales series to one seller and optionally one
// product or category subtree.
type SalesFilters struct {
	SellerID  uuid.UUID
	From      time.Time
	To        time.Time
	ProductID *string
	Category  *string
}

// Repository reads reporting rows. It never writes.
type Repository interface {
	CountOrders(ctx context.Context, filters OrderFilters) (int64, error)
	ListOrders(ctx context.Context, filters OrderFilters, limit int) ([]OrderRow, error)
	ListSalesRows(ctx context.Context, filters SalesFilters) ([]SalesRow, error)
	CommissionSummary(ctx context.Context, filters OrderFilters) ([]CommissionRow, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

var orderColumns = []string{
	"so.id AS sub_order_id",
	"so.sub_order_number",
	"o.order_number",
	"so.seller_id",
	"so.seller_name",
	"o.buyer_id",
	"o.buyer_name",
	"so.status",
	"o.payment_status",
	"so.quantity",
	"so.items_subtotal",
	"so.shipping_cost",
	"so.discount_total",
	"so.grand_total",
	"ea.commission_amount AS commission",
	"ea.seller_payout_amount AS seller_payout",
	"ea.released_to_buyer",
	"ea.released_to_seller",
	"ea.payout_status",
	"so.created_at",
}

func (r *repository) orders(ctx context.Context, filters OrderFilters) *gorm.DB {
	qb := r.db.WithContext(ctx).
		Table("sub_orders so").
		Joins("JOIN orders o ON o.id = so.order_id").
		Joins("LEFT JOIN escrow_allocations ea ON ea.sub_order_id = so.id")
	if filters.SellerID != nil {
		qb = qb.Where("so.seller_id = ?", *filters.SellerID)
	}
	if filters.BuyerID != nil {
		qb = qb.Where("o.buyer_id = ?", *filters.BuyerID)
	}
	if filters.Status != nil {
		qb = qb.Where("so.status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		qb = qb.Where("so.created_at >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		qb = qb.Where("so.created_at < ?", filters.DateTo.UTC())
	}
	return qb
}

func (r *repository) CountOrders(ctx context.Context, filters OrderFilters) (int64, error) {
	var total int64
	if err := r.orders(ctx, filters).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) ListOrders(ctx context.Context, filters OrderFilters, limit int) ([]OrderRow, error) {
	var rows []OrderRow
	err := r.orders(ctx, filters).
		Select(strings.Join(orderColumns, ", ")).
		Order("so.created_at ASC").
		Order("so.sub_order_number ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

var excludedSalesStatuses = []enums.OrderStatus{
	enums.OrderStatusFailed,
	enums.OrderStatusCancelled,
	enums.OrderStatusRefunded,
}

func (r *repository) ListSalesRows(ctx context.Context, filters SalesFilters) ([]SalesRow, error) {
	qb := r.db.WithContext(ctx).
		Table("order_items oi").
		Select("oi.sub_order_id, oi.quantity, oi.line_total, so.created_at").
		Joins("JOIN sub_orders so ON so.id = oi.sub_order_id").
		Where("oi.seller_id = ?", filters.SellerID).
		Where("oi.status NOT IN ?", excludedSalesStatuses).
		Where("so.created_at >= ? AND so.created_at < ?", filters.From.UTC(), filters.To.UTC())
	if filters.ProductID != nil {
		qb = qb.Where("oi.product_id = ?", *filters.ProductID)
	}
	if filters.Category != nil {
		qb = qb.Where("(oi.category_path = ? OR oi.category_path LIKE ?)", *filters.Category, *filters.Category+"/%")
	}
	var rows []SalesRow
	if err := qb.Order("so.created_at ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CommissionSummary(ctx context.Context, filters OrderFilters) ([]CommissionRow, error) {
	var rows []CommissionRow
	err := r.orders(ctx, filters).
		Select(strings.Join([]string{
			"so.seller_id",
			"MAX(so.seller_name) AS seller_name",
			"COUNT(ea.id) AS order_count",
			"COALESCE(SUM(ea.held_amount), 0) AS gross",
			"COALESCE(SUM(ea.commission_amount), 0) AS commission",
			"COALESCE(SUM(ea.seller_payout_amount), 0) AS seller_payout",
			"COALESCE(SUM(ea.released_to_buyer), 0) AS released_to_buyer",
			"COALESCE(SUM(ea.released_to_seller), 0) AS released_to_seller",
		}, ", ")).
		Where("ea.id IS NOT NULL").
		Group("so.seller_id").
		Order("so.seller_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
