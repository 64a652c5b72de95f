// Package payments keeps orders in step with what the payment provider
// reports after checkout: captures, failures and refunds.
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/escrow"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

// UpdateInput is one provider notification about a payment.
type UpdateInput struct {
	PaymentReference string
	Status           enums.PaymentStatus
	// RefundedAmount is the cumulative amount the provider has refunded.
	RefundedAmount *decimal.Decimal
	Message        *string
	// SubOrderNumber scopes a partial refund to one sub-order. Without it
	// the refund is spread over the sub-orders in sequence.
	SubOrderNumber *string
}

// Result mirrors the webhook response contract.
type Result struct {
	Success        bool                `json:"success"`
	OrderID        uuid.UUID           `json:"order_id"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	NoOp           bool                `json:"noop"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderMutator interface {
	MutateByPaymentReferenceTx(ctx context.Context, tx *gorm.DB, reference string, actor orders.Actor, fn func(m *orders.Mutation) error) (*models.Order, error)
}

// Service applies provider payment updates to orders.
type Service interface {
	UpdatePaymentStatus(ctx context.Context, input UpdateInput) (*Result, error)
}

// ServiceParams wires the synchronizer.
type ServiceParams struct {
	Orders orderMutator
	Tx     txRunner
	Logger *logger.Logger
}

type service struct {
	orders orderMutator
	tx     txRunner
	logg   *logger.Logger
}

// NewService validates dependencies and builds the synchronizer.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{orders: params.Orders, tx: params.Tx, logg: params.Logger}, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, input UpdateInput) (*Result, error) {
	input.PaymentReference = strings.TrimSpace(input.PaymentReference)
	if input.PaymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", input.Status))
	}
	if input.RefundedAmount != nil && input.RefundedAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refunded amount must not be negative")
	}
	if input.Status == enums.PaymentStatusPartialRefund && input.RefundedAmount == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partial refund requires a refunded amount")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.orders.MutateByPaymentReferenceTx(ctx, tx, input.PaymentReference, orders.SystemActor, func(m *orders.Mutation) error {
			var err error
			result, err = apply(m, input)
			return err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logUpdate(ctx, input, result)
	return result, nil
}

// apply runs inside the order lock. Refunds are cumulative, so only the part
// above what the order already recorded moves escrow.
func apply(m *orders.Mutation, input UpdateInput) (*Result, error) {
	order := m.Order
	target := order.RefundedAmount
	switch {
	case input.RefundedAmount != nil:
		target = escrow.Round(*input.RefundedAmount)
	case input.Status == enums.PaymentStatusRefunded:
		target = order.GrandTotal
	}
	if target.GreaterThan(order.GrandTotal) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refunded amount exceeds order total").
			WithDetails(map[string]any{"refunded_amount": target.String(), "grand_total": order.GrandTotal.String()})
	}

	result := &Result{Success: true, OrderID: order.ID}
	if isSameUpdate(order, input, target) {
		result.PaymentStatus = order.PaymentStatus
		result.RefundedAmount = order.RefundedAmount
		result.NoOp = true
		return result, nil
	}

	from := order.PaymentStatus
	previous := order.RefundedAmount
	delta := target.Sub(previous)

	if target.Equal(order.GrandTotal) && target.IsPositive() {
		if err := refundEverything(m); err != nil {
			return nil, err
		}
	} else if delta.IsPositive() {
		if err := cascadeRefund(m, delta, input.SubOrderNumber); err != nil {
			return nil, err
		}
	}

	// Releases above already bumped the order total; the provider figure is
	// authoritative when it is higher.
	if target.GreaterThan(order.RefundedAmount) {
		order.RefundedAmount = target
	}
	order.PaymentStatus = input.Status
	if input.Message != nil {
		msg := strings.TrimSpace(*input.Message)
		order.PaymentMessage = &msg
	}
	m.Touch()
	m.Emit(outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.PaymentStatusChangedEvent{
			OrderID:          order.ID,
			PaymentReference: order.PaymentReference,
			From:             from,
			To:               order.PaymentStatus,
			RefundedAmount:   order.RefundedAmount,
			RefundDelta:      escrow.ClampZero(delta),
		},
	})

	result.PaymentStatus = order.PaymentStatus
	result.RefundedAmount = order.RefundedAmount
	return result, nil
}

func isSameUpdate(order *models.Order, input UpdateInput, target decimal.Decimal) bool {
	if order.PaymentStatus != input.Status || !order.RefundedAmount.Equal(target) {
		return false
	}
	if input.Message == nil {
		return true
	}
	return order.PaymentMessage != nil && *order.PaymentMessage == strings.TrimSpace(*input.Message)
}

// refundEverything drives every open sub-order to Refunded, which releases
// whatever each allocation still holds.
func refundEverything(m *orders.Mutation) error {
	for i := range m.Order.SubOrders {
		sub := &m.Order.SubOrders[i]
		if sub.Status.IsTerminal() {
			continue
		}
		note := "payment fully refunded"
		if _, err := m.Transition(sub, orders.TransitionRequest{Target: enums.OrderStatusRefunded, Note: &note}); err != nil {
			return err
		}
	}
	return nil
}

// cascadeRefund releases delta from the targeted sub-order, or from the
// sub-orders in sequence. A sub-order left with nothing held is closed as
// Refunded.
func cascadeRefund(m *orders.Mutation, delta decimal.Decimal, subOrderNumber *string) error {
	var targets []*models.SubOrder
	if subOrderNumber != nil && strings.TrimSpace(*subOrderNumber) != "" {
		sub, err := m.SubOrderByNumber(strings.TrimSpace(*subOrderNumber))
		if err != nil {
			return err
		}
		targets = append(targets, sub)
	} else {
		for i := range m.Order.SubOrders {
			targets = append(targets, &m.Order.SubOrders[i])
		}
	}

	remaining := delta
	for _, sub := range targets {
		if !remaining.IsPositive() {
			break
		}
		if sub.Allocation == nil || sub.Status == enums.OrderStatusFailed {
			continue
		}
		released, err := m.ReleaseToBuyer(sub, remaining, "provider refund on "+m.Order.PaymentReference)
		if err != nil {
			return err
		}
		remaining = remaining.Sub(released)

		summary, err := m.Summary(sub)
		if err != nil {
			return err
		}
		if summary.Remaining().IsZero() && !sub.Status.IsTerminal() {
			note := "escrow fully refunded"
			if _, err := m.Transition(sub, orders.TransitionRequest{Target: enums.OrderStatusRefunded, Note: &note}); err != nil {
				return err
			}
		}
	}
	if remaining.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refund exceeds the escrow still held").
			WithDetails(map[string]any{"unallocated": remaining.String()})
	}
	return nil
}

func (s *service) logUpdate(ctx context.Context, input UpdateInput, result *Result) {
	if s.logg == nil || result == nil {
		return
	}
	ctx = s.logg.WithOrderID(ctx, result.OrderID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_reference": input.PaymentReference,
		"payment_status":    string(result.PaymentStatus),
		"refunded_amount":   result.RefundedAmount.String(),
		"noop":              result.NoOp,
	})
	s.logg.Info(ctx, "payment status synchronized")
}
