package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// ErrDeadLetterNotFound is returned when a DLQ id matches no row.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

const (
	defaultDLQPageSize = 50
	maxDLQPageSize     = 200
)

// DLQFilter narrows the dead-letter listing. Zero values match everything.
type DLQFilter struct {
	EventType   enums.OutboxEventType
	ErrorReason enums.OutboxDLQErrorReason
	AggregateID *uuid.UUID
	Limit       int
}

type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = r.now()
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxErrorLen {
		msg := (*entry.ErrorMessage)[:maxErrorLen]
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// List returns dead letters newest first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQPageSize
	}
	limit = min(limit, maxDLQPageSize)

	q := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.ErrorReason != "" {
		q = q.Where("error_reason = ?", filter.ErrorReason)
	}
	if filter.AggregateID != nil {
		q = q.Where("aggregate_id = ?", *filter.AggregateID)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Requeue hands a dead letter back to the publisher. The outbox row is reset
// to a fresh pending state; if retention already purged it, it is rebuilt
// from the copy kept in the DLQ. The DLQ row is removed in the same
// transaction and the outbox event id is returned.
func (r *DLQRepository) Requeue(ctx context.Context, dlqID uuid.UUID) (uuid.UUID, error) {
	var eventID uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		if err := tx.Where("id = ?", dlqID).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDeadLetterNotFound
			}
			return err
		}
		eventID = entry.EventID

		res := tx.Model(&models.OutboxEvent{}).
			Where("id = ?", entry.EventID).
			Updates(map[string]any{
				"published_at":    nil,
				"terminal_at":     nil,
				"next_attempt_at": nil,
				"last_error":      nil,
				"attempt_count":   0,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			rebuilt := models.OutboxEvent{
				ID:            entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
				CreatedAt:     r.now(),
			}
			if err := tx.Create(&rebuilt).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error
	})
	return eventID, err
}
