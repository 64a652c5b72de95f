package settlements

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// Repository reads settled escrow and persists invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListEligibleInWindow(ctx context.Context, start, end time.Time) ([]models.EscrowAllocation, error)
	SellerNames(ctx context.Context, subOrderIDs []uuid.UUID) (map[uuid.UUID]string, error)
	FindInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindInvoiceForPeriod(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Invoice, error)
	ListInvoices(ctx context.Context, year, month int) ([]models.Invoice, error)
	ListSellerInvoices(ctx context.Context, sellerID uuid.UUID) ([]models.Invoice, error)
	MaxSequence(ctx context.Context, year, month int) (int, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	UpdateInvoice(ctx context.Context, invoice *models.Invoice) error
	LockInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlements repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListEligibleInWindow loads every allocation whose PayoutEligible entry was
// recorded inside [start, end), with its full ledger.
func (r *repository) ListEligibleInWindow(ctx context.Context, start, end time.Time) ([]models.EscrowAllocation, error) {
	eligible := r.db.Model(&models.EscrowLedgerEntry{}).
		Select("allocation_id").
		Where("type = ?", enums.LedgerEntryPayoutEligible).
		Where("created_at >= ? AND created_at < ?", start.UTC(), end.UTC())

	var allocations []models.EscrowAllocation
	err := r.db.WithContext(ctx).
		Where("id IN (?)", eligible).
		Preload("Entries", func(tx *gorm.DB) *gorm.DB { return tx.Order("sequence ASC") }).
		Order("seller_id ASC").
		Order("id ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

// SellerNames maps sub-order ids to the seller name frozen on the sub-order.
func (r *repository) SellerNames(ctx context.Context, subOrderIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(subOrderIDs))
	if len(subOrderIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID         uuid.UUID
		SellerName string
	}
	err := r.db.WithContext(ctx).
		Model(&models.SubOrder{}).
		Select("id, seller_name").
		Where("id IN ?", subOrderIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.SellerName
	}
	return out, nil
}

func (r *repository) FindInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindInvoiceForPeriod returns nil when the seller has no invoice for the period.
func (r *repository) FindInvoiceForPeriod(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND year = ? AND month = ?", sellerID, year, month).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListInvoices(ctx context.Context, year, month int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("year = ? AND month = ?", year, month).
		Order("sequence ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) ListSellerInvoices(ctx context.Context, sellerID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("year DESC").
		Order("month DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) MaxSequence(ctx context.Context, year, month int) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("MAX(sequence)").
		Where("year = ? AND month = ?", year, month).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) UpdateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *repository) LockInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
