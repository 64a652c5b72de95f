package payments_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders/orderstest"
	"github.com/angelmondragon/packfinderz-escrow/internal/payments"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

var admin = orders.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}

func setup(t *testing.T) (*orderstest.Harness, payments.Service) {
	t.Helper()
	client, _ := dbtest.Client(t)
	h := orderstest.New(t, client)
	svc, err := payments.NewService(payments.ServiceParams{Orders: h.Service, Tx: client})
	require.NoError(t, err)
	return h, svc
}

func amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func reload(t *testing.T, h *orderstest.Harness, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.Service.GetOrder(context.Background(), id, admin)
	require.NoError(t, err)
	return order
}

func bySeller(t *testing.T, order *models.Order, seller uuid.UUID) *models.SubOrder {
	t.Helper()
	for i := range order.SubOrders {
		if order.SubOrders[i].SellerID == seller {
			return &order.SubOrders[i]
		}
	}
	t.Fatalf("missing sub-order for %s", seller)
	return nil
}

func assertReconciles(t *testing.T, alloc *models.EscrowAllocation) {
	t.Helper()
	sum := alloc.CommissionAmount.Add(alloc.SellerPayoutAmount).Add(alloc.ReleasedToBuyer)
	assert.True(t, sum.Equal(alloc.HeldAmount), "commission+payout+released %s != held %s", sum, alloc.HeldAmount)
}

func TestUpdatePaymentStatusUnknownReference(t *testing.T) {
	_, svc := setup(t)

	_, err := svc.UpdatePaymentStatus(context.Background(), payments.UpdateInput{
		PaymentReference: "pi_missing",
		Status:           enums.PaymentStatusRefunded,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdatePaymentStatusValidation(t *testing.T) {
	h, svc := setup(t)
	h.PlaceOrder(t, "pi_valid")
	ctx := context.Background()

	cases := map[string]payments.UpdateInput{
		"missing reference":      {Status: enums.PaymentStatusPaid},
		"unknown status":         {PaymentReference: "pi_valid", Status: "chargeback"},
		"negative amount":        {PaymentReference: "pi_valid", Status: enums.PaymentStatusPartialRefund, RefundedAmount: amount("-1")},
		"partial without amount": {PaymentReference: "pi_valid", Status: enums.PaymentStatusPartialRefund},
		"above grand total":      {PaymentReference: "pi_valid", Status: enums.PaymentStatusPartialRefund, RefundedAmount: amount("55.01")},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.UpdatePaymentStatus(ctx, input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestPartialRefundCascadesIntoEscrow(t *testing.T) {
	h, svc := setup(t)
	ctx := context.Background()
	placed := h.PlaceOrder(t, "pi_partial")

	input := payments.UpdateInput{
		PaymentReference: "pi_partial",
		Status:           enums.PaymentStatusPartialRefund,
		RefundedAmount:   amount("10"),
	}
	result, err := svc.UpdatePaymentStatus(ctx, input)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.NoOp)
	assert.Equal(t, enums.PaymentStatusPartialRefund, result.PaymentStatus)
	assert.True(t, result.RefundedAmount.Equal(decimal.NewFromInt(10)))

	order := reload(t, h, placed.ID)
	a := bySeller(t, order, orderstest.SellerA)
	assert.True(t, a.Allocation.ReleasedToBuyer.Equal(decimal.NewFromInt(10)))
	assert.True(t, a.Allocation.CommissionAmount.Equal(decimal.NewFromInt(2)))
	assert.True(t, a.Allocation.SellerPayoutAmount.Equal(decimal.NewFromInt(18)))
	assertReconciles(t, a.Allocation)
	assert.Equal(t, enums.OrderStatusPaid, a.Status)

	again, err := svc.UpdatePaymentStatus(ctx, input)
	require.NoError(t, err)
	assert.True(t, again.NoOp)
	assert.Len(t, h.Outbox.OfType(enums.EventPaymentStatusChanged), 1)

	order = reload(t, h, placed.ID)
	assert.True(t, bySeller(t, order, orderstest.SellerA).Allocation.ReleasedToBuyer.Equal(decimal.NewFromInt(10)))
}

func TestScopedRefundClosesDrainedSubOrder(t *testing.T) {
	h, svc := setup(t)
	ctx := context.Background()
	placed := h.PlaceOrder(t, "pi_scoped")
	number := bySeller(t, placed, orderstest.SellerB).SubOrderNumber

	_, err := svc.UpdatePaymentStatus(ctx, payments.UpdateInput{
		PaymentReference: "pi_scoped",
		Status:           enums.PaymentStatusPartialRefund,
		RefundedAmount:   amount("25"),
		SubOrderNumber:   &number,
	})
	require.NoError(t, err)

	order := reload(t, h, placed.ID)
	b := bySeller(t, order, orderstest.SellerB)
	assert.Equal(t, enums.OrderStatusRefunded, b.Status)
	assert.True(t, b.Allocation.ReleasedToBuyer.Equal(decimal.NewFromInt(25)))
	assert.True(t, b.Allocation.SellerPayoutAmount.IsZero())
	assertReconciles(t, b.Allocation)

	a := bySeller(t, order, orderstest.SellerA)
	assert.True(t, a.Allocation.ReleasedToBuyer.IsZero())
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.True(t, order.RefundedAmount.Equal(decimal.NewFromInt(25)))
}

func TestFullRefundDrivesEverythingToRefunded(t *testing.T) {
	h, svc := setup(t)
	ctx := context.Background()
	placed := h.PlaceOrder(t, "pi_full")
	message := "customer request"

	result, err := svc.UpdatePaymentStatus(ctx, payments.UpdateInput{
		PaymentReference: "pi_full",
		Status:           enums.PaymentStatusRefunded,
		Message:          &message,
	})
	require.NoError(t, err)
	assert.True(t, result.RefundedAmount.Equal(decimal.NewFromInt(55)))

	order := reload(t, h, placed.ID)
	assert.Equal(t, enums.OrderStatusRefunded, order.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, order.PaymentStatus)
	require.NotNil(t, order.PaymentMessage)
	assert.Equal(t, message, *order.PaymentMessage)
	for _, sub := range order.SubOrders {
		assert.Equal(t, enums.OrderStatusRefunded, sub.Status)
		assert.True(t, sub.Allocation.ReleasedToBuyer.Equal(sub.GrandTotal))
		assertReconciles(t, sub.Allocation)
	}
	assert.Len(t, h.Outbox.OfType(enums.EventSubOrderStatusChanged), 2)

	again, err := svc.UpdatePaymentStatus(ctx, payments.UpdateInput{
		PaymentReference: "pi_full",
		Status:           enums.PaymentStatusRefunded,
		RefundedAmount:   amount("55"),
		Message:          &message,
	})
	require.NoError(t, err)
	assert.True(t, again.NoOp)
}

func TestFailedPaymentOnlyRecordsStatus(t *testing.T) {
	h, svc := setup(t)
	placed := h.PlaceOrder(t, "pi_late_failure")
	message := "card disputed"

	_, err := svc.UpdatePaymentStatus(context.Background(), payments.UpdateInput{
		PaymentReference: "pi_late_failure",
		Status:           enums.PaymentStatusFailed,
		Message:          &message,
	})
	require.NoError(t, err)

	order := reload(t, h, placed.ID)
	assert.Equal(t, enums.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.True(t, order.RefundedAmount.IsZero())
}
