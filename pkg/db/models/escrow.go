package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// EscrowAllocation holds the funds of one sub-order. Every amount column is a
// cached fold of Entries and is rewritten whenever an entry is appended.
type EscrowAllocation struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SubOrderID         uuid.UUID           `gorm:"column:sub_order_id;type:uuid;not null;uniqueIndex:ux_escrow_allocations_sub_order"`
	OrderID            uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID           uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index:idx_escrow_allocations_payout"`
	Currency           string              `gorm:"column:currency;not null"`
	CommissionRate     decimal.Decimal     `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	HeldAmount         decimal.Decimal     `gorm:"column:held_amount;type:numeric(12,2);not null"`
	CommissionAmount   decimal.Decimal     `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	SellerPayoutAmount decimal.Decimal     `gorm:"column:seller_payout_amount;type:numeric(12,2);not null"`
	ReleasedToBuyer    decimal.Decimal     `gorm:"column:released_to_buyer;type:numeric(12,2);not null"`
	ReleasedToSeller   decimal.Decimal     `gorm:"column:released_to_seller;type:numeric(12,2);not null"`
	PayoutEligible     bool                `gorm:"column:payout_eligible;not null;index:idx_escrow_allocations_payout"`
	EligibleAt         *time.Time          `gorm:"column:eligible_at;index"`
	PayoutStatus       enums.PayoutStatus  `gorm:"column:payout_status;type:text;not null;index:idx_escrow_allocations_payout"`
	PayoutErrorRef     *string             `gorm:"column:payout_error_ref"`
	PayoutRunID        *uuid.UUID          `gorm:"column:payout_run_id;type:uuid"`
	Entries            []EscrowLedgerEntry `gorm:"foreignKey:AllocationID"`
	CreatedAt          time.Time           `gorm:"column:created_at"`
	UpdatedAt          time.Time           `gorm:"column:updated_at"`
}

// EscrowLedgerEntry is an immutable money movement against an allocation.
type EscrowLedgerEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AllocationID uuid.UUID             `gorm:"column:allocation_id;type:uuid;not null;uniqueIndex:ux_escrow_ledger_entries_seq"`
	Sequence     int                   `gorm:"column:sequence;not null;uniqueIndex:ux_escrow_ledger_entries_seq"`
	Type         enums.LedgerEntryType `gorm:"column:type;type:text;not null"`
	Amount       decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Note         string                `gorm:"column:note;not null"`
	PayoutRunID  *uuid.UUID            `gorm:"column:payout_run_id;type:uuid"`
	CreatedAt    time.Time             `gorm:"column:created_at;index"`
}

// PayoutAccount maps a seller to its connected Stripe account.
type PayoutAccount struct {
	SellerID        uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	StripeAccountID string    `gorm:"column:stripe_account_id;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

// PayoutRun is the audit row written for every seller payout attempt.
type PayoutRun struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SellerID          uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index"`
	Status            enums.PayoutRunStatus `gorm:"column:status;type:text;not null"`
	Currency          string                `gorm:"column:currency;not null"`
	TotalAmount       decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	AllocationCount   int                   `gorm:"column:allocation_count;not null"`
	ProviderReference *string               `gorm:"column:provider_reference"`
	FailureReason     *string               `gorm:"column:failure_reason"`
	StartedAt         time.Time             `gorm:"column:started_at;not null"`
	FinishedAt        *time.Time            `gorm:"column:finished_at"`
}
