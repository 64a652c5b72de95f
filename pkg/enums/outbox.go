package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateSubOrder     OutboxAggregateType = "sub_order"
	AggregatePayoutRun    OutboxAggregateType = "payout_run"
	AggregateReturnCase   OutboxAggregateType = "return_case"
	AggregateInvoice      OutboxAggregateType = "invoice"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateSubOrder,
	AggregatePayoutRun,
	AggregateReturnCase,
	AggregateInvoice,
	AggregateNotification,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseEnum("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventSubOrderStatusChanged OutboxEventType = "sub_order_status_changed"
	EventPaymentStatusChanged  OutboxEventType = "payment_status_changed"
	EventPayoutCompleted       OutboxEventType = "payout_completed"
	EventPayoutFailed          OutboxEventType = "payout_failed"
	EventReturnCaseOpened      OutboxEventType = "return_case_opened"
	EventReturnCaseUpdated     OutboxEventType = "return_case_updated"
	EventReturnCaseResolved    OutboxEventType = "return_case_resolved"
	EventInvoiceIssued         OutboxEventType = "invoice_issued"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventSubOrderStatusChanged,
	EventPaymentStatusChanged,
	EventPayoutCompleted,
	EventPayoutFailed,
	EventReturnCaseOpened,
	EventReturnCaseUpdated,
	EventReturnCaseResolved,
	EventInvoiceIssued,
	EventNotificationRequested,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseEnum("event type", value, validOutboxEventTypes)
}
