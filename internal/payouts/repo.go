package payouts

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

// payableStatuses are the allocation states a run may claim. Failed
// allocations are retried by the next run.
var payableStatuses = []enums.PayoutStatus{enums.PayoutStatusScheduled, enums.PayoutStatusFailed}

// Repository persists payout runs and reads payable allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListPayable(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.EscrowAllocation, error)
	SellersWithPayable(ctx context.Context) ([]uuid.UUID, error)
	FindAccount(ctx context.Context, sellerID uuid.UUID) (*models.PayoutAccount, error)
	UpsertAccount(ctx context.Context, account *models.PayoutAccount) error
	CreateRun(ctx context.Context, run *models.PayoutRun) error
	UpdateRun(ctx context.Context, run *models.PayoutRun) error
	FindRun(ctx context.Context, id uuid.UUID) (*models.PayoutRun, error)
	ListRuns(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutRun, error)
	ListStaleRuns(ctx context.Context, startedBefore time.Time, limit int) ([]models.PayoutRun, error)
	ListRunAllocations(ctx context.Context, runID uuid.UUID) ([]models.EscrowAllocation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func payable(db *gorm.DB) *gorm.DB {
	return db.
		Where("payout_eligible = ?", true).
		Where("payout_status IN ?", payableStatuses).
		Where("seller_payout_amount > released_to_seller")
}

func (r *repository) ListPayable(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.EscrowAllocation, error) {
	var allocations []models.EscrowAllocation
	err := payable(r.db.WithContext(ctx).Model(&models.EscrowAllocation{})).
		Where("seller_id = ?", sellerID).
		Preload("Entries", func(tx *gorm.DB) *gorm.DB { return tx.Order("sequence ASC") }).
		Order("eligible_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

func (r *repository) SellersWithPayable(ctx context.Context) ([]uuid.UUID, error) {
	var sellers []uuid.UUID
	err := payable(r.db.WithContext(ctx).Model(&models.EscrowAllocation{})).
		Distinct("seller_id").
		Order("seller_id ASC").
		Pluck("seller_id", &sellers).Error
	if err != nil {
		return nil, err
	}
	return sellers, nil
}

func (r *repository) FindAccount(ctx context.Context, sellerID uuid.UUID) (*models.PayoutAccount, error) {
	var account models.PayoutAccount
	err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpsertAccount(ctx context.Context, account *models.PayoutAccount) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stripe_account_id", "updated_at"}),
	}).Create(account).Error
}

func (r *repository) CreateRun(ctx context.Context, run *models.PayoutRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *repository) UpdateRun(ctx context.Context, run *models.PayoutRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *repository) FindRun(ctx context.Context, id uuid.UUID) (*models.PayoutRun, error) {
	var run models.PayoutRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repository) ListRuns(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutRun, error) {
	var runs []models.PayoutRun
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ListStaleRuns returns runs still processing that started before the cutoff.
func (r *repository) ListStaleRuns(ctx context.Context, startedBefore time.Time, limit int) ([]models.PayoutRun, error) {
	var runs []models.PayoutRun
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutRunStatusProcessing).
		Where("started_at < ?", startedBefore).
		Order("started_at ASC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ListRunAllocations returns the allocations a run claimed and never settled.
func (r *repository) ListRunAllocations(ctx context.Context, runID uuid.UUID) ([]models.EscrowAllocation, error) {
	var allocations []models.EscrowAllocation
	err := r.db.WithContext(ctx).
		Where("payout_run_id = ?", runID).
		Where("payout_status = ?", enums.PayoutStatusProcessing).
		Preload("Entries", func(tx *gorm.DB) *gorm.DB { return tx.Order("sequence ASC") }).
		Order("id ASC").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	return allocations, nil
}
