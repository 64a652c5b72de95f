package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pagination"
)

// ErrVersionConflict is returned when the order changed between load and save.
var ErrVersionConflict = pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func preloadAggregate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("SubOrders", func(tx *gorm.DB) *gorm.DB { return tx.Order("sequence ASC") }).
		Preload("SubOrders.Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Preload("SubOrders.History", func(tx *gorm.DB) *gorm.DB { return tx.Order("sequence ASC") }).
		Preload("SubOrders.Allocation").
		Preload("SubOrders.Allocation.Entries", func(tx *gorm.DB) *gorm.DB { return tx.Order("sequence ASC") })
}

// CreateOrder inserts every level of the aggregate explicitly so the row
// order is deterministic and associations are never upserted.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	for i := range order.SubOrders {
		sub := &order.SubOrders[i]
		if err := db.Omit(clause.Associations).Create(sub).Error; err != nil {
			return err
		}
		if len(sub.Items) > 0 {
			if err := db.Omit(clause.Associations).Create(&sub.Items).Error; err != nil {
				return err
			}
		}
		if len(sub.History) > 0 {
			if err := db.Create(&sub.History).Error; err != nil {
				return err
			}
		}
		if sub.Allocation == nil {
			continue
		}
		if err := db.Omit(clause.Associations).Create(sub.Allocation).Error; err != nil {
			return err
		}
		if len(sub.Allocation.Entries) > 0 {
			if err := db.Create(&sub.Allocation.Entries).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := preloadAggregate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := preloadAggregate(r.db.WithContext(ctx)).
		Where("payment_reference = ?", reference).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := preloadAggregate(r.db.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := preloadAggregate(r.db.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_reference = ?", reference).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindSubOrder(ctx context.Context, id uuid.UUID) (*models.SubOrder, error) {
	var sub models.SubOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubOrderByProviderRef(ctx context.Context, providerID, reference string) (*models.SubOrder, error) {
	var sub models.SubOrder
	err := r.db.WithContext(ctx).
		Where("shipping_provider_id = ? AND shipping_provider_ref = ?", providerID, reference).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveAggregate bumps the order version with a compare-and-swap, rewrites the
// mutable rows and appends the new ledger and history rows.
func (r *repository) SaveAggregate(ctx context.Context, order *models.Order, changes *ChangeSet) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"status":          order.Status,
			"payment_status":  order.PaymentStatus,
			"payment_message": order.PaymentMessage,
			"refunded_amount": order.RefundedAmount,
			"updated_at":      order.UpdatedAt,
			"version":         order.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	order.Version++

	for i := range order.SubOrders {
		sub := &order.SubOrders[i]
		if err := db.Omit(clause.Associations).Save(sub).Error; err != nil {
			return err
		}
		for j := range sub.Items {
			if err := db.Omit(clause.Associations).Save(&sub.Items[j]).Error; err != nil {
				return err
			}
		}
		if sub.Allocation != nil {
			if err := db.Omit(clause.Associations).Save(sub.Allocation).Error; err != nil {
				return err
			}
		}
	}
	if changes == nil {
		return nil
	}
	if len(changes.History) > 0 {
		if err := db.Create(&changes.History).Error; err != nil {
			return err
		}
	}
	if len(changes.Entries) > 0 {
		if err := db.Create(&changes.Entries).Error; err != nil {
			return err
		}
	}
	return nil
}

type subOrderSummaryRecord struct {
	SubOrderID       uuid.UUID
	SubOrderNumber   string
	OrderID          uuid.UUID
	OrderNumber      string
	SellerID         uuid.UUID
	SellerName       string
	BuyerID          uuid.UUID
	BuyerName        string
	Status           enums.OrderStatus
	PaymentStatus    enums.PaymentStatus
	ItemsSubtotal    decimal.Decimal
	ShippingCost     decimal.Decimal
	DiscountTotal    decimal.Decimal
	GrandTotal       decimal.Decimal
	Quantity         int
	Commission       decimal.NullDecimal
	SellerPayout     decimal.NullDecimal
	ReleasedToBuyer  decimal.NullDecimal
	ReleasedToSeller decimal.NullDecimal
	PayoutStatus     *enums.PayoutStatus
	CreatedAt        time.Time
}

func (r subOrderSummaryRecord) toSummary() SubOrderSummary {
	return SubOrderSummary{
		SubOrderID:       r.SubOrderID,
		SubOrderNumber:   r.SubOrderNumber,
		OrderID:          r.OrderID,
		OrderNumber:      r.OrderNumber,
		SellerID:         r.SellerID,
		SellerName:       r.SellerName,
		BuyerID:          r.BuyerID,
		BuyerName:        r.BuyerName,
		Status:           r.Status,
		PaymentStatus:    r.PaymentStatus,
		ItemsSubtotal:    r.ItemsSubtotal,
		ShippingCost:     r.ShippingCost,
		DiscountTotal:    r.DiscountTotal,
		GrandTotal:       r.GrandTotal,
		Quantity:         r.Quantity,
		Commission:       nullToZero(r.Commission),
		SellerPayout:     nullToZero(r.SellerPayout),
		ReleasedToBuyer:  nullToZero(r.ReleasedToBuyer),
		ReleasedToSeller: nullToZero(r.ReleasedToSeller),
		PayoutStatus:     r.PayoutStatus,
		CreatedAt:        r.CreatedAt,
	}
}

func nullToZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

func (r *repository) ListSubOrders(ctx context.Context, params pagination.Params, filters SubOrderFilters) (*SubOrderList, error) {
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	qb := r.db.WithContext(ctx).
		Table("sub_orders so").
		Select(strings.Join([]string{
			"so.id AS sub_order_id",
			"so.sub_order_number",
			"so.order_id",
			"o.order_number",
			"so.seller_id",
			"so.seller_name",
			"o.buyer_id",
			"o.buyer_name",
			"so.status",
			"o.payment_status",
			"so.items_subtotal",
			"so.shipping_cost",
			"so.discount_total",
			"so.grand_total",
			"so.quantity",
			"ea.commission_amount AS commission",
			"ea.seller_payout_amount AS seller_payout",
			"ea.released_to_buyer",
			"ea.released_to_seller",
			"ea.payout_status",
			"so.created_at",
		}, ", ")).
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
		qb = qb.Where("so.created_at <= ?", filters.DateTo.UTC())
	}
	if cursor != nil {
		qb = qb.Where("((so.created_at < ?) OR (so.created_at = ? AND so.id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var records []subOrderSummaryRecord
	if err := qb.Order("so.created_at DESC").Order("so.id DESC").Limit(limitWithBuffer).Scan(&records).Error; err != nil {
		return nil, err
	}

	records, nextCursor := pagination.Trim(records, params.Limit, func(rec subOrderSummaryRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rec.CreatedAt, ID: rec.SubOrderID}
	})

	summaries := make([]SubOrderSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.toSummary())
	}
	return &SubOrderList{SubOrders: summaries, NextCursor: nextCursor}, nil
}

type buyerOrderRecord struct {
	ID             uuid.UUID
	OrderNumber    string
	Status         enums.OrderStatus
	PaymentStatus  enums.PaymentStatus
	GrandTotal     decimal.Decimal
	RefundedAmount decimal.Decimal
	Quantity       int
	SellerCount    int
	CreatedAt      time.Time
}

func (r *repository) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*BuyerOrderList, error) {
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	qb := r.db.WithContext(ctx).
		Table("orders o").
		Select(strings.Join([]string{
			"o.id",
			"o.order_number",
			"o.status",
			"o.payment_status",
			"o.grand_total",
			"o.refunded_amount",
			"o.quantity",
			"(SELECT COUNT(*) FROM sub_orders so WHERE so.order_id = o.id) AS seller_count",
			"o.created_at",
		}, ", ")).
		Where("o.buyer_id = ?", buyerID)

	if filters.Status != nil {
		qb = qb.Where("o.status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		qb = qb.Where("o.created_at >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		qb = qb.Where("o.created_at <= ?", filters.DateTo.UTC())
	}
	if cursor != nil {
		qb = qb.Where("((o.created_at < ?) OR (o.created_at = ? AND o.id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var records []buyerOrderRecord
	if err := qb.Order("o.created_at DESC").Order("o.id DESC").Limit(limitWithBuffer).Scan(&records).Error; err != nil {
		return nil, err
	}

	records, nextCursor := pagination.Trim(records, params.Limit, func(rec buyerOrderRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rec.CreatedAt, ID: rec.ID}
	})

	orders := make([]BuyerOrderSummary, 0, len(records))
	for _, record := range records {
		orders = append(orders, BuyerOrderSummary{
			OrderID:        record.ID,
			OrderNumber:    record.OrderNumber,
			Status:         record.Status,
			PaymentStatus:  record.PaymentStatus,
			GrandTotal:     record.GrandTotal,
			RefundedAmount: record.RefundedAmount,
			Quantity:       record.Quantity,
			SellerCount:    record.SellerCount,
			CreatedAt:      record.CreatedAt,
		})
	}
	return &BuyerOrderList{Orders: orders, NextCursor: nextCursor}, nil
}
