package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// Invoice is the monthly commission invoice issued to a seller.
type Invoice struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber    string              `gorm:"column:invoice_number;not null;uniqueIndex:ux_invoices_number"`
	SellerID         uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_invoices_seller_period"`
	SellerName       string              `gorm:"column:seller_name;not null"`
	Year             int                 `gorm:"column:year;not null;uniqueIndex:ux_invoices_seller_period"`
	Month            int                 `gorm:"column:month;not null;uniqueIndex:ux_invoices_seller_period"`
	Sequence         int                 `gorm:"column:sequence;not null"`
	PeriodStart      time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd        time.Time           `gorm:"column:period_end;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	OrderCount       int                 `gorm:"column:order_count;not null"`
	GrossAmount      decimal.Decimal     `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	CommissionAmount decimal.Decimal     `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	PayoutAmount     decimal.Decimal     `gorm:"column:payout_amount;type:numeric(12,2);not null"`
	AdjustmentCount  int                 `gorm:"column:adjustment_count;not null"`
	AdjustmentAmount decimal.Decimal     `gorm:"column:adjustment_amount;type:numeric(12,2);not null"`
	NetAmount        decimal.Decimal     `gorm:"column:net_amount;type:numeric(12,2);not null"`
	TaxRate          decimal.Decimal     `gorm:"column:tax_rate;type:numeric(6,4);not null"`
	TaxAmount        decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	HasCorrections   bool                `gorm:"column:has_corrections;not null"`
	Status           enums.InvoiceStatus `gorm:"column:status;type:text;not null"`
	PaymentReference *string             `gorm:"column:payment_reference"`
	IssuedAt         time.Time           `gorm:"column:issued_at;not null"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
}
