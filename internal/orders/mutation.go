package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/internal/escrow"
	"github.com/angelmondragon/packfinderz-escrow/internal/notifications"
	"github.com/angelmondragon/packfinderz-escrow/internal/shipping"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

// ChangeSet collects the append-only rows produced by a mutation.
type ChangeSet struct {
	Entries []models.EscrowLedgerEntry
	History []models.SubOrderStatusHistory
}

// Mutation is a unit of change applied to a locked order. Everything it
// records is persisted by the caller in one transaction, or not at all.
type Mutation struct {
	Order *models.Order
	Actor Actor

	ctx      context.Context
	now      time.Time
	svc      *service
	dirty    bool
	changes  ChangeSet
	events   []outbox.DomainEvent
	messages []notifications.Message
}

// Now is the timestamp shared by every row the mutation writes.
func (m *Mutation) Now() time.Time {
	return m.now
}

// Touch marks the order as changed so it is saved even without transitions.
func (m *Mutation) Touch() {
	m.dirty = true
}

// Emit queues an outbox event written with the aggregate.
func (m *Mutation) Emit(event outbox.DomainEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now
	}
	if event.Version == 0 {
		event.Version = 1
	}
	m.events = append(m.events, event)
}

// Notify queues a notification written with the aggregate.
func (m *Mutation) Notify(msg notifications.Message) {
	m.messages = append(m.messages, msg)
}

// SubOrder returns the loaded sub-order with the given id.
func (m *Mutation) SubOrder(id uuid.UUID) (*models.SubOrder, error) {
	for i := range m.Order.SubOrders {
		if m.Order.SubOrders[i].ID == id {
			return &m.Order.SubOrders[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found")
}

// SubOrderByNumber returns the loaded sub-order with the given number.
func (m *Mutation) SubOrderByNumber(number string) (*models.SubOrder, error) {
	for i := range m.Order.SubOrders {
		if m.Order.SubOrders[i].SubOrderNumber == number {
			return &m.Order.SubOrders[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found")
}

// Summary folds the sub-order allocation.
func (m *Mutation) Summary(sub *models.SubOrder) (escrow.Summary, error) {
	if sub.Allocation == nil {
		return escrow.Summary{}, pkgerrors.New(pkgerrors.CodeStateConflict, "sub-order holds no escrow")
	}
	return escrow.Fold(sub.Allocation.CommissionRate, sub.Allocation.Entries)
}

// ReleaseToBuyer returns up to amount of the sub-order escrow to the buyer,
// capped at what is still held. It reports the amount actually released.
func (m *Mutation) ReleaseToBuyer(sub *models.SubOrder, amount decimal.Decimal, note string) (decimal.Decimal, error) {
	summary, err := m.Summary(sub)
	if err != nil {
		return decimal.Zero, err
	}
	amount = decimal.Min(escrow.Round(amount), summary.Remaining())
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	entry, err := escrow.Append(sub.Allocation, enums.LedgerEntryReleaseToBuyer, amount, note, m.now)
	if err != nil {
		return decimal.Zero, err
	}
	m.changes.Entries = append(m.changes.Entries, *entry)
	m.Order.RefundedAmount = escrow.Round(m.Order.RefundedAmount.Add(amount))
	m.dirty = true
	m.Notify(withAggregate(notifications.RefundIssued(m.Order.BuyerEmail, sub.SubOrderNumber, m.Order.Currency, amount), m.Order.ID))
	return amount, nil
}

// ReleaseToSeller records a payout transfer against the sub-order escrow,
// capped at the outstanding seller payout, and links it to the payout run.
func (m *Mutation) ReleaseToSeller(sub *models.SubOrder, amount decimal.Decimal, runID uuid.UUID, note string) (decimal.Decimal, error) {
	summary, err := m.Summary(sub)
	if err != nil {
		return decimal.Zero, err
	}
	amount = decimal.Min(escrow.Round(amount), summary.Outstanding)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	entry, err := escrow.Append(sub.Allocation, enums.LedgerEntryReleaseToSeller, amount, note, m.now)
	if err != nil {
		return decimal.Zero, err
	}
	run := runID
	entry.PayoutRunID = &run
	sub.Allocation.Entries[len(sub.Allocation.Entries)-1].PayoutRunID = &run
	m.changes.Entries = append(m.changes.Entries, *entry)
	m.dirty = true
	return amount, nil
}

// SetPayoutStatus moves the sub-order allocation through the payout flow.
func (m *Mutation) SetPayoutStatus(sub *models.SubOrder, status enums.PayoutStatus, runID *uuid.UUID, errorRef *string) error {
	if sub.Allocation == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "sub-order holds no escrow")
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout status %q", status))
	}
	sub.Allocation.PayoutStatus = status
	sub.Allocation.PayoutErrorRef = errorRef
	if runID != nil {
		sub.Allocation.PayoutRunID = runID
	}
	sub.Allocation.UpdatedAt = m.now
	m.dirty = true
	return nil
}

// AllocationSubOrder returns the loaded sub-order owning the allocation.
func (m *Mutation) AllocationSubOrder(allocationID uuid.UUID) (*models.SubOrder, error) {
	for i := range m.Order.SubOrders {
		if alloc := m.Order.SubOrders[i].Allocation; alloc != nil && alloc.ID == allocationID {
			return &m.Order.SubOrders[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "allocation not found")
}

// Transition moves a sub-order, or the listed items, along the status graph
// and applies the ledger side effects of the resulting state.
func (m *Mutation) Transition(sub *models.SubOrder, req TransitionRequest) (*TransitionResult, error) {
	if !req.Target.IsValid() || req.Target == enums.OrderStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transition target %q", req.Target))
	}
	if sub.Status == enums.OrderStatusFailed {
		return nil, transitionError(sub.Status, req.Target)
	}

	from := sub.Status
	moved, err := planMoves(sub, req.Target, req.ItemIDs)
	if err != nil {
		return nil, err
	}
	if len(moved) == 0 {
		return &TransitionResult{From: from, To: from, ReleasedToBuyer: decimal.Zero, NoOp: true}, nil
	}

	// Carrier calls happen before anything is written so a failure leaves the
	// aggregate untouched.
	if req.Target == enums.OrderStatusShipped {
		if err := m.ship(sub, moved, req); err != nil {
			return nil, err
		}
	}

	movedIDs := make([]uuid.UUID, 0, len(moved))
	for _, item := range moved {
		item.Status = req.Target
		item.UpdatedAt = m.now
		movedIDs = append(movedIDs, item.ID)
	}
	sub.Status = DeriveStatus(itemStatuses(sub))
	sub.UpdatedAt = m.now
	switch req.Target {
	case enums.OrderStatusShipped:
		if sub.ShippedAt == nil {
			at := m.now
			sub.ShippedAt = &at
		}
	case enums.OrderStatusDelivered:
		if sub.Status == enums.OrderStatusDelivered {
			at := m.now
			sub.DeliveredAt = &at
		}
	}
	m.dirty = true

	result := &TransitionResult{From: from, To: sub.Status, ReleasedToBuyer: decimal.Zero}
	if req.Target == enums.OrderStatusCancelled || req.Target == enums.OrderStatusRefunded {
		released, err := m.releaseFor(sub, moved, len(req.ItemIDs) == 0, req.Target)
		if err != nil {
			return nil, err
		}
		result.ReleasedToBuyer = released
	}

	if m.svc.eligible[sub.Status] && sub.Allocation != nil {
		entry, err := escrow.Append(sub.Allocation, enums.LedgerEntryPayoutEligible, decimal.Zero, "eligible at "+string(sub.Status), m.now)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			m.changes.Entries = append(m.changes.Entries, *entry)
			result.BecameEligible = true
		}
	}

	history := models.SubOrderStatusHistory{
		ID:             uuid.New(),
		SubOrderID:     sub.ID,
		Sequence:       len(sub.History) + 1,
		Status:         req.Target,
		ItemIDs:        movedIDs,
		TrackingNumber: sub.TrackingNumber,
		Carrier:        sub.Carrier,
		Note:           req.Note,
		ActorRole:      m.actorRole(),
		CreatedAt:      m.now,
	}
	sub.History = append(sub.History, history)
	m.changes.History = append(m.changes.History, history)

	m.Order.Status = DeriveStatus(subOrderStatuses(m.Order))

	m.Emit(outbox.DomainEvent{
		EventType:     enums.EventSubOrderStatusChanged,
		AggregateType: enums.AggregateSubOrder,
		AggregateID:   sub.ID,
		Actor:         m.actorRef(),
		Data: payloads.SubOrderStatusChangedEvent{
			OrderID:         m.Order.ID,
			SubOrderID:      sub.ID,
			SubOrderNumber:  sub.SubOrderNumber,
			SellerID:        sub.SellerID,
			From:            from,
			To:              sub.Status,
			Requested:       req.Target,
			ItemIDs:         movedIDs,
			ReleasedToBuyer: result.ReleasedToBuyer,
			PayoutEligible:  sub.Allocation != nil && sub.Allocation.PayoutEligible,
		},
	})
	if req.Target == enums.OrderStatusShipped {
		m.Notify(withAggregate(notifications.OrderShipped(m.Order.BuyerEmail, sub.SubOrderNumber, deref(sub.Carrier), deref(sub.TrackingNumber)), m.Order.ID))
	}
	return result, nil
}

// releaseFor refunds the moved items. A whole sub-order request, or one that
// closes the sub-order, releases everything still held so shipping is
// refunded too.
func (m *Mutation) releaseFor(sub *models.SubOrder, moved []*models.OrderItem, whole bool, target enums.OrderStatus) (decimal.Decimal, error) {
	if sub.Allocation == nil {
		return decimal.Zero, nil
	}
	summary, err := m.Summary(sub)
	if err != nil {
		return decimal.Zero, err
	}
	amount := decimal.Zero
	if whole || sub.Status.IsTerminal() {
		amount = summary.Remaining()
	} else {
		for _, item := range moved {
			amount = amount.Add(escrow.ItemRefundable(item.LineTotal, sub.DiscountTotal, sub.ItemsSubtotal))
		}
	}
	return m.ReleaseToBuyer(sub, amount, fmt.Sprintf("%s %d item(s) of %s", target, len(moved), sub.SubOrderNumber))
}

func (m *Mutation) ship(sub *models.SubOrder, moved []*models.OrderItem, req TransitionRequest) error {
	if req.TrackingNumber != nil {
		sub.TrackingNumber = req.TrackingNumber
	}
	if req.Carrier != nil {
		sub.Carrier = req.Carrier
	}
	if sub.ShippingProviderID == nil || *sub.ShippingProviderID == "" || req.TrackingNumber != nil {
		return nil
	}

	provider, ok := m.svc.shipping.Get(*sub.ShippingProviderID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("shipping provider %q is not configured", *sub.ShippingProviderID))
	}
	items := make([]shipping.ShipmentItem, 0, len(moved))
	for _, item := range moved {
		items = append(items, shipping.ShipmentItem{Title: item.Title, Quantity: item.Quantity})
	}
	shipment, err := provider.RequestShipment(m.ctx, shipping.ShipmentRequest{
		SubOrderNumber: sub.SubOrderNumber,
		SellerName:     sub.SellerName,
		Method:         sub.ShippingMethod,
		Address:        m.Order.ShippingAddress,
		Items:          items,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request shipment")
	}
	sub.TrackingNumber = &shipment.TrackingNumber
	sub.Carrier = &shipment.Carrier
	sub.CarrierLabel = shipment.Label
	sub.ShippingProviderRef = &shipment.ProviderReference
	return nil
}

func (m *Mutation) actorRole() enums.ActorRole {
	if m.Actor.Role == "" {
		return enums.ActorRoleSystem
	}
	return m.Actor.Role
}

func (m *Mutation) actorRef() *outbox.ActorRef {
	if m.Actor.ID == uuid.Nil {
		return &outbox.ActorRef{Role: string(m.actorRole())}
	}
	return &outbox.ActorRef{UserID: m.Actor.ID, Role: string(m.actorRole())}
}

func withAggregate(msg notifications.Message, id uuid.UUID) notifications.Message {
	msg.AggregateID = id
	return msg
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
