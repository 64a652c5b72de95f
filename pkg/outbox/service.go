package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

// DomainEvent is a state change a service wants published. Version and
// OccurredAt default to 1 and now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

// Emit stores event as an outbox row on tx, so the event exists exactly when
// the state change that caused it commits. The row id doubles as the
// envelope's eventId.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	switch {
	case tx == nil:
		return errors.New("transaction required")
	case !event.EventType.IsValid():
		return errors.New("unknown event type " + string(event.EventType))
	case !event.AggregateType.IsValid():
		return errors.New("unknown aggregate type " + string(event.AggregateType))
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	id := uuid.New()
	payload, err := sealEnvelope(id, event)
	if err != nil {
		return err
	}
	err = s.repo.Insert(tx, models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
		CreatedAt:     event.OccurredAt,
	})
	if err != nil || s.logg == nil {
		return err
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      id.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	}), "outbox event queued")
	return nil
}
