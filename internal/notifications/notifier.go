package notifications

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

// Message is a rendered notification addressed to one recipient.
type Message struct {
	To          string
	Subject     string
	Body        string
	Template    string
	AggregateID uuid.UUID
}

// Notifier queues a message as part of the caller's transaction so that a
// rolled back operation never notifies anyone.
type Notifier interface {
	Send(ctx context.Context, tx *gorm.DB, msg Message) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxNotifier turns messages into notification_requested outbox events.
type OutboxNotifier struct {
	outbox outboxEmitter
}

// NewOutboxNotifier wires the notifier to the outbox service.
func NewOutboxNotifier(emitter outboxEmitter) (*OutboxNotifier, error) {
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &OutboxNotifier{outbox: emitter}, nil
}

func (n *OutboxNotifier) Send(ctx context.Context, tx *gorm.DB, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notification recipient required")
	}
	aggregateID := msg.AggregateID
	if aggregateID == uuid.Nil {
		aggregateID = uuid.New()
	}
	return n.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   aggregateID,
		Version:       1,
		Data: payloads.NotificationRequestedEvent{
			To:       msg.To,
			Subject:  msg.Subject,
			Body:     msg.Body,
			Template: msg.Template,
		},
	})
}
