// Package registry decides where each outbox event type is published and
// how its payload decodes. The publisher resolves every row through it
// before sending; rows it cannot resolve are dead-lettered.
package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/pkg/config"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	decoders map[schemaKey]Decoder
}

// NonRetryableError marks a failure that another attempt cannot fix.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

type route struct {
	event        enums.OutboxEventType
	aggregate    enums.OutboxAggregateType
	notification bool
	decode       Decoder
}

// routes lists every event the escrow engine emits, with its v1 decoder.
var routes = []route{
	{enums.EventOrderCreated, enums.AggregateOrder, false, decodeAs[payloads.OrderCreatedEvent]()},
	{enums.EventSubOrderStatusChanged, enums.AggregateSubOrder, false, decodeAs[payloads.SubOrderStatusChangedEvent]()},
	{enums.EventPaymentStatusChanged, enums.AggregateOrder, false, decodeAs[payloads.PaymentStatusChangedEvent]()},
	{enums.EventPayoutCompleted, enums.AggregatePayoutRun, false, decodeAs[payloads.PayoutCompletedEvent]()},
	{enums.EventPayoutFailed, enums.AggregatePayoutRun, false, decodeAs[payloads.PayoutFailedEvent]()},
	{enums.EventReturnCaseOpened, enums.AggregateReturnCase, false, decodeAs[payloads.ReturnCaseEvent]()},
	{enums.EventReturnCaseUpdated, enums.AggregateReturnCase, false, decodeAs[payloads.ReturnCaseEvent]()},
	{enums.EventReturnCaseResolved, enums.AggregateReturnCase, false, decodeAs[payloads.ReturnCaseEvent]()},
	{enums.EventInvoiceIssued, enums.AggregateInvoice, false, decodeAs[payloads.InvoiceIssuedEvent]()},
	{enums.EventNotificationRequested, enums.AggregateNotification, true, decodeAs[payloads.NotificationRequestedEvent]()},
}

// NewEventRegistry routes domain events to cfg.DomainTopic and notification
// requests to cfg.NotificationTopic, or to the domain topic when unset.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	notifications := cfg.NotificationTopic
	if notifications == "" {
		notifications = cfg.DomainTopic
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor, len(routes)),
		decoders: make(map[schemaKey]Decoder, len(routes)),
	}
	for _, rt := range routes {
		topic := cfg.DomainTopic
		if rt.notification {
			topic = notifications
		}
		reg.entries[rt.event] = EventDescriptor{EventType: rt.event, AggregateType: rt.aggregate, Topic: topic}
		reg.decoders[schemaKey{rt.event, 1}] = rt.decode
	}
	return reg, nil
}

// Resolve checks the row against its route and decodes the payload. Every
// error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	env, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := r.decode(event.EventType, env.SchemaVersion(), env.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
