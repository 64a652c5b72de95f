package cases

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

// Repository persists return cases, their history and message thread.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSubOrder(ctx context.Context, id uuid.UUID) (*models.SubOrder, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnCase, error)
	FindByNumber(ctx context.Context, number string) (*models.ReturnCase, error)
	FindBySubOrder(ctx context.Context, subOrderID uuid.UUID) (*models.ReturnCase, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.ReturnCase, error)
	Create(ctx context.Context, rc *models.ReturnCase) error
	Save(ctx context.Context, rc *models.ReturnCase) error
	AddHistory(ctx context.Context, entry *models.ReturnCaseHistory) error
	AddMessage(ctx context.Context, msg *models.CaseMessage) error
	ListMessages(ctx context.Context, caseID uuid.UUID) ([]models.CaseMessage, error)
	List(ctx context.Context, filters Filters) ([]models.ReturnCase, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, from, to time.Time) ([]models.ReturnCase, error)
}

// Filters narrow case listings. Zero values are ignored.
type Filters struct {
	SellerID *uuid.UUID
	BuyerID  *uuid.UUID
	Status   *enums.ReturnCaseStatus
	Limit    int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cases repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindSubOrder(ctx context.Context, id uuid.UUID) (*models.SubOrder, error) {
	var sub models.SubOrder
	err := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func preloadCase(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items").
		Preload("History", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") })
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnCase, error) {
	var rc models.ReturnCase
	if err := preloadCase(r.db.WithContext(ctx)).Where("id = ?", id).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.ReturnCase, error) {
	var rc models.ReturnCase
	if err := preloadCase(r.db.WithContext(ctx)).Where("case_number = ?", number).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

// FindBySubOrder returns nil when the sub-order has no case.
func (r *repository) FindBySubOrder(ctx context.Context, subOrderID uuid.UUID) (*models.ReturnCase, error) {
	var rc models.ReturnCase
	err := r.db.WithContext(ctx).Where("sub_order_id = ?", subOrderID).First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.ReturnCase, error) {
	var rc models.ReturnCase
	err := preloadCase(r.db.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&rc).Error
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *repository) Create(ctx context.Context, rc *models.ReturnCase) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(rc).Error; err != nil {
		return err
	}
	if len(rc.Items) > 0 {
		if err := db.Create(&rc.Items).Error; err != nil {
			return err
		}
	}
	for i := range rc.History {
		if err := db.Create(&rc.History[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) Save(ctx context.Context, rc *models.ReturnCase) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(rc).Error
}

func (r *repository) AddHistory(ctx context.Context, entry *models.ReturnCaseHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) AddMessage(ctx context.Context, msg *models.CaseMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *repository) ListMessages(ctx context.Context, caseID uuid.UUID) ([]models.CaseMessage, error) {
	var messages []models.CaseMessage
	err := r.db.WithContext(ctx).
		Where("return_case_id = ?", caseID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) List(ctx context.Context, filters Filters) ([]models.ReturnCase, error) {
	q := r.db.WithContext(ctx).Model(&models.ReturnCase{})
	if filters.SellerID != nil {
		q = q.Where("seller_id = ?", *filters.SellerID)
	}
	if filters.BuyerID != nil {
		q = q.Where("buyer_id = ?", *filters.BuyerID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.ReturnCase
	if err := q.Order("requested_on DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) ListForSeller(ctx context.Context, sellerID uuid.UUID, from, to time.Time) ([]models.ReturnCase, error) {
	var out []models.ReturnCase
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Where("requested_on >= ? AND requested_on < ?", from.UTC(), to.UTC()).
		Order("requested_on ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
