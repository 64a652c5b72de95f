package cases_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/internal/cases"
	"github.com/angelmondragon/packfinderz-escrow/internal/notifications"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders/orderstest"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

var (
	admin   = orders.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}
	buyer   = orders.Actor{ID: orderstest.BuyerID, Role: enums.ActorRoleBuyer}
	sellerA = orders.Actor{ID: orderstest.SellerA, Role: enums.ActorRoleSeller}
	sellerB = orders.Actor{ID: orderstest.SellerB, Role: enums.ActorRoleSeller}
)

type fixture struct {
	h   *orderstest.Harness
	svc cases.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	h := orderstest.New(t, client)
	svc, err := cases.NewService(cases.ServiceParams{
		Repo:     cases.NewRepository(conn),
		Orders:   h.Service,
		Tx:       client,
		Outbox:   h.Outbox,
		Notifier: h.Notifier,
		Config: cases.Config{
			ReturnWindow:     14 * 24 * time.Hour,
			FirstResponseSLA: 48 * time.Hour,
			ResolutionSLA:    168 * time.Hour,
		},
		Now: h.Clock.Now,
	})
	require.NoError(t, err)
	return &fixture{h: h, svc: svc}
}

// delivered places an order and walks seller A's sub-order to delivered.
func (f *fixture) delivered(t *testing.T, reference string) (*models.Order, *models.SubOrder) {
	t.Helper()
	order := f.h.PlaceOrder(t, reference)
	sub := subFor(t, order, orderstest.SellerA)
	for _, target := range []enums.OrderStatus{enums.OrderStatusPreparing, enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		_, _, err := f.h.Service.TransitionSubOrder(context.Background(), orders.TransitionInput{
			SubOrderID: sub.ID,
			Actor:      admin,
			Request:    orders.TransitionRequest{Target: target},
		})
		require.NoError(t, err)
	}
	return order, sub
}

func (f *fixture) open(t *testing.T, sub *models.SubOrder, typ enums.ReturnCaseType) *models.ReturnCase {
	t.Helper()
	rc, err := f.svc.CreateReturnRequest(context.Background(), cases.CreateInput{
		SubOrderID: sub.ID,
		Actor:      buyer,
		Type:       typ,
		Reason:     "damaged on arrival",
	})
	require.NoError(t, err)
	return rc
}

func (f *fixture) reload(t *testing.T, orderID uuid.UUID) *models.Order {
	t.Helper()
	order, err := f.h.Service.GetOrder(context.Background(), orderID, admin)
	require.NoError(t, err)
	return order
}

func subFor(t *testing.T, order *models.Order, seller uuid.UUID) *models.SubOrder {
	t.Helper()
	for i := range order.SubOrders {
		if order.SubOrders[i].SellerID == seller {
			return &order.SubOrders[i]
		}
	}
	t.Fatalf("missing sub-order for %s", seller)
	return nil
}

func refund(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestCreateReturnRequestOpensCase(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_open")

	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)
	assert.Equal(t, "RC-"+sub.SubOrderNumber, rc.CaseNumber)
	assert.Equal(t, enums.ReturnCaseStatusPendingSellerReview, rc.Status)
	assert.Equal(t, orderstest.SellerA, rc.SellerID)
	assert.Equal(t, rc.RequestedOn.Add(48*time.Hour), rc.FirstResponseDueOn)
	assert.Equal(t, rc.RequestedOn.Add(168*time.Hour), rc.ResolutionDueOn)
	assert.Len(t, rc.Items, 2)
	assert.Len(t, rc.History, 1)
	assert.Len(t, f.h.Outbox.OfType(enums.EventReturnCaseOpened), 1)

	view, err := f.svc.GetCase(context.Background(), rc.ID, sellerA)
	require.NoError(t, err)
	assert.False(t, view.SLA.Breached)
}

func TestCreateReturnRequestRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_dup")
	f.open(t, sub, enums.ReturnCaseTypeReturn)

	_, err := f.svc.CreateReturnRequest(context.Background(), cases.CreateInput{
		SubOrderID: sub.ID,
		Actor:      buyer,
		Type:       enums.ReturnCaseTypeComplaint,
		Reason:     "still broken",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateReturnRequestRequiresDelivery(t *testing.T) {
	f := newFixture(t)
	order := f.h.PlaceOrder(t, "pi_case_undelivered")
	sub := subFor(t, order, orderstest.SellerA)

	_, err := f.svc.CreateReturnRequest(context.Background(), cases.CreateInput{
		SubOrderID: sub.ID,
		Actor:      buyer,
		Type:       enums.ReturnCaseTypeReturn,
		Reason:     "never arrived",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateReturnRequestWindow(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_window")
	f.h.Clock.Advance(15 * 24 * time.Hour)

	_, err := f.svc.CreateReturnRequest(context.Background(), cases.CreateInput{
		SubOrderID: sub.ID,
		Actor:      buyer,
		Type:       enums.ReturnCaseTypeReturn,
		Reason:     "changed my mind",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	rc := f.open(t, sub, enums.ReturnCaseTypeComplaint)
	assert.Equal(t, enums.ReturnCaseTypeComplaint, rc.Type)
}

func TestCreateReturnRequestHidesForeignSubOrder(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_foreign")

	_, err := f.svc.CreateReturnRequest(context.Background(), cases.CreateInput{
		SubOrderID: sub.ID,
		Actor:      orders.Actor{ID: uuid.New(), Role: enums.ActorRoleBuyer},
		Type:       enums.ReturnCaseTypeReturn,
		Reason:     "not mine",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateReturnRequestValidatesItems(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_items")

	_, err := f.svc.CreateReturnRequest(context.Background(), cases.CreateInput{
		SubOrderID: sub.ID,
		Actor:      buyer,
		Type:       enums.ReturnCaseTypeReturn,
		Reason:     "too many",
		Items:      []cases.ItemInput{{OrderItemID: sub.Items[0].ID, Quantity: 5}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSellerReviewStampsFirstResponse(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_review")
	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)
	f.h.Clock.Advance(3 * time.Hour)

	updated, err := f.svc.UpdateReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.SellerUpdateInput{Status: enums.ReturnCaseStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnCaseStatusApproved, updated.Status)
	require.NotNil(t, updated.FirstRespondedOn)
	assert.Equal(t, f.h.Clock.Now(), *updated.FirstRespondedOn)
	assert.Len(t, f.h.Outbox.OfType(enums.EventReturnCaseUpdated), 1)

	_, err = f.svc.UpdateReturnCaseForSeller(context.Background(), rc.ID, sellerB, cases.SellerUpdateInput{Status: enums.ReturnCaseStatusRejected})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.UpdateReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.SellerUpdateInput{Status: enums.ReturnCaseStatusCompleted})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSellerPartialRefundMovesEscrow(t *testing.T) {
	f := newFixture(t)
	order, sub := f.delivered(t, "pi_case_partial")
	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)

	resolved, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{
		Outcome:      enums.ReturnCaseOutcomePartialRefund,
		RefundAmount: refund("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnCaseStatusCompleted, resolved.Status)
	require.True(t, resolved.RefundAmount.Valid)
	assert.True(t, resolved.RefundAmount.Decimal.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, resolved.PaymentReference)
	assert.Equal(t, "pi_case_partial", *resolved.PaymentReference)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, enums.ActorRoleSeller, *resolved.ResolvedBy)

	reloaded := f.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusPartialRefund, reloaded.PaymentStatus)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.NewFromInt(10)))
	alloc := subFor(t, reloaded, orderstest.SellerA).Allocation
	assert.True(t, alloc.ReleasedToBuyer.Equal(decimal.NewFromInt(10)))
	assert.True(t, alloc.SellerPayoutAmount.Equal(decimal.NewFromInt(18)))

	assert.Contains(t, f.h.Notifier.Templates(), notifications.TemplateCaseResolved)
	assert.Len(t, f.h.Outbox.OfType(enums.EventReturnCaseResolved), 1)

	again, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeNoRefund})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnCaseOutcomePartialRefund, *again.Outcome)
	assert.True(t, again.RefundAmount.Decimal.Equal(decimal.NewFromInt(10)))
	assert.Len(t, f.h.Outbox.OfType(enums.EventReturnCaseResolved), 1)
}

func itemTitled(t *testing.T, sub *models.SubOrder, title string) *models.OrderItem {
	t.Helper()
	for i := range sub.Items {
		if sub.Items[i].Title == title {
			return &sub.Items[i]
		}
	}
	t.Fatalf("missing item %s", title)
	return nil
}

func (f *fixture) openForItems(t *testing.T, sub *models.SubOrder, items []cases.ItemInput) *models.ReturnCase {
	t.Helper()
	rc, err := f.svc.CreateReturnRequest(context.Background(), cases.CreateInput{
		SubOrderID: sub.ID,
		Actor:      buyer,
		Type:       enums.ReturnCaseTypeReturn,
		Reason:     "one item arrived broken",
		Items:      items,
	})
	require.NoError(t, err)
	return rc
}

func TestFullRefundCoversOnlyCaseItems(t *testing.T) {
	f := newFixture(t)
	order, sub := f.delivered(t, "pi_case_scoped")
	widget := itemTitled(t, sub, "Widget")
	rc := f.openForItems(t, sub, []cases.ItemInput{{OrderItemID: widget.ID, Quantity: 2}})

	resolved, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeFullRefund})
	require.NoError(t, err)
	want := decimal.RequireFromString("10.71")
	require.True(t, resolved.RefundAmount.Valid)
	assert.True(t, resolved.RefundAmount.Decimal.Equal(want), resolved.RefundAmount.Decimal.String())

	reloaded := f.reload(t, order.ID)
	assert.True(t, reloaded.RefundedAmount.Equal(want))
	assert.Equal(t, enums.PaymentStatusPartialRefund, reloaded.PaymentStatus)
	scoped := subFor(t, reloaded, orderstest.SellerA)
	assert.NotEqual(t, enums.OrderStatusRefunded, scoped.Status)
	assert.Equal(t, enums.OrderStatusRefunded, itemTitled(t, scoped, "Widget").Status)
	assert.Equal(t, enums.OrderStatusDelivered, itemTitled(t, scoped, "Gadget").Status)
	assert.True(t, scoped.Allocation.ReleasedToBuyer.Equal(want))
}

func TestFullRefundProratesPartialQuantity(t *testing.T) {
	f := newFixture(t)
	order, sub := f.delivered(t, "pi_case_half")
	widget := itemTitled(t, sub, "Widget")
	rc := f.openForItems(t, sub, []cases.ItemInput{{OrderItemID: widget.ID, Quantity: 1}})

	resolved, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeFullRefund})
	require.NoError(t, err)
	want := decimal.RequireFromString("5.36")
	assert.True(t, resolved.RefundAmount.Decimal.Equal(want), resolved.RefundAmount.Decimal.String())

	reloaded := f.reload(t, order.ID)
	assert.True(t, reloaded.RefundedAmount.Equal(want))
	scoped := subFor(t, reloaded, orderstest.SellerA)
	assert.Equal(t, enums.OrderStatusDelivered, itemTitled(t, scoped, "Widget").Status)
	assert.Equal(t, enums.OrderStatusDelivered, itemTitled(t, scoped, "Gadget").Status)
}

func TestAdminFullRefundTopsUpScopedCase(t *testing.T) {
	f := newFixture(t)
	order, sub := f.delivered(t, "pi_case_topup")
	widget := itemTitled(t, sub, "Widget")
	rc := f.openForItems(t, sub, []cases.ItemInput{{OrderItemID: widget.ID, Quantity: 2}})

	_, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{
		Outcome:      enums.ReturnCaseOutcomePartialRefund,
		RefundAmount: refund("4"),
	})
	require.NoError(t, err)

	resolved, err := f.svc.ResolveReturnCaseForAdmin(context.Background(), rc.ID, admin, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeFullRefund})
	require.NoError(t, err)
	want := decimal.RequireFromString("10.71")
	assert.True(t, resolved.RefundAmount.Decimal.Equal(want), resolved.RefundAmount.Decimal.String())
	assert.True(t, f.reload(t, order.ID).RefundedAmount.Equal(want))
}

func TestFullRefundOfEveryItemRefundsSubOrder(t *testing.T) {
	f := newFixture(t)
	order, sub := f.delivered(t, "pi_case_whole")
	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)

	resolved, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeFullRefund})
	require.NoError(t, err)
	assert.True(t, resolved.RefundAmount.Decimal.Equal(decimal.NewFromInt(30)))

	reloaded := f.reload(t, order.ID)
	assert.Equal(t, enums.OrderStatusRefunded, subFor(t, reloaded, orderstest.SellerA).Status)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.NewFromInt(30)))
}

func TestPartialRefundCannotExceedHeldFunds(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_excess")
	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)

	_, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{
		Outcome:      enums.ReturnCaseOutcomePartialRefund,
		RefundAmount: refund("31"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEscalationBlocksSellerAndAdminSupersedes(t *testing.T) {
	f := newFixture(t)
	order, sub := f.delivered(t, "pi_case_escalate")
	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)

	escalated, err := f.svc.EscalateReturnCaseForAdmin(context.Background(), rc.ID, buyer, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnCaseStatusUnderAdminReview, escalated.Status)
	assert.Nil(t, escalated.FirstRespondedOn)

	escalations := 0
	for _, template := range f.h.Notifier.Templates() {
		if template == notifications.TemplateCaseEscalated {
			escalations++
		}
	}
	assert.Equal(t, 2, escalations)

	again, err := f.svc.EscalateReturnCaseForAdmin(context.Background(), rc.ID, buyer, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnCaseStatusUnderAdminReview, again.Status)
	assert.Len(t, f.h.Outbox.OfType(enums.EventReturnCaseUpdated), 1)

	_, err = f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeNoRefund})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.ResolveReturnCaseForAdmin(context.Background(), rc.ID, buyer, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeFullRefund})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	resolved, err := f.svc.ResolveReturnCaseForAdmin(context.Background(), rc.ID, admin, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeFullRefund})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnCaseStatusCompleted, resolved.Status)
	assert.True(t, resolved.RefundAmount.Decimal.Equal(decimal.NewFromInt(30)))

	reloaded := f.reload(t, order.ID)
	refunded := subFor(t, reloaded, orderstest.SellerA)
	assert.Equal(t, enums.OrderStatusRefunded, refunded.Status)
	assert.True(t, refunded.Allocation.SellerPayoutAmount.IsZero())
	assert.Equal(t, enums.PaymentStatusPartialRefund, reloaded.PaymentStatus)

	replay, err := f.svc.ResolveReturnCaseForAdmin(context.Background(), rc.ID, admin, cases.ResolveInput{Outcome: enums.ReturnCaseOutcomeNoRefund})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnCaseOutcomeFullRefund, *replay.Outcome)
	assert.Len(t, f.h.Outbox.OfType(enums.EventReturnCaseResolved), 1)

	_, err = f.svc.EscalateReturnCaseForAdmin(context.Background(), rc.ID, buyer, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAdminOverridesSellerResolutionWithoutDoubleRefund(t *testing.T) {
	f := newFixture(t)
	order, sub := f.delivered(t, "pi_case_override")
	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)

	_, err := f.svc.ResolveReturnCaseForSeller(context.Background(), rc.ID, sellerA, cases.ResolveInput{
		Outcome:      enums.ReturnCaseOutcomePartialRefund,
		RefundAmount: refund("10"),
	})
	require.NoError(t, err)

	resolved, err := f.svc.ResolveReturnCaseForAdmin(context.Background(), rc.ID, admin, cases.ResolveInput{
		Outcome:      enums.ReturnCaseOutcomePartialRefund,
		RefundAmount: refund("15"),
	})
	require.NoError(t, err)
	assert.True(t, resolved.RefundAmount.Decimal.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, enums.ActorRoleAdmin, *resolved.ResolvedBy)

	reloaded := f.reload(t, order.ID)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.NewFromInt(15)))
}

func TestSLABreachComputedOnRead(t *testing.T) {
	f := newFixture(t)
	_, sub := f.delivered(t, "pi_case_sla")
	rc := f.open(t, sub, enums.ReturnCaseTypeReturn)

	f.h.Clock.Advance(169 * time.Hour)
	view, err := f.svc.GetCase(context.Background(), rc.ID, admin)
	require.NoError(t, err)
	assert.True(t, view.SLA.Breached)
	assert.True(t, view.SLA.FirstResponseOverdue)

	metrics, err := f.svc.SellerSLAMetrics(context.Background(), orderstest.SellerA, sellerA, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Total)
	assert.Equal(t, 1, metrics.Breached)

	_, err = f.svc.SellerSLAMetrics(context.Background(), orderstest.SellerA, sellerB, time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestMessagesThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, sub := f.delivered(t, "pi_case_messages")
	rc := f.open(t, sub, enums.ReturnCaseTypeComplaint)

	_, err := f.svc.AddMessage(ctx, rc.ID, buyer, "The box was crushed.")
	require.NoError(t, err)
	f.h.Clock.Advance(time.Minute)
	_, err = f.svc.AddMessage(ctx, rc.ID, sellerA, "Sorry, sending a replacement.")
	require.NoError(t, err)

	_, err = f.svc.AddMessage(ctx, rc.ID, buyer, "   ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.AddMessage(ctx, rc.ID, buyer, strings.Repeat("x", 4001))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.AddMessage(ctx, rc.ID, sellerB, "hello")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	messages, err := f.svc.ListMessages(ctx, rc.ID, admin)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, enums.ActorRoleBuyer, messages[0].AuthorRole)
	assert.Equal(t, enums.ActorRoleSeller, messages[1].AuthorRole)
}

func TestListCasesScopesByActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, sub := f.delivered(t, "pi_case_list")
	f.open(t, sub, enums.ReturnCaseTypeReturn)

	mine, err := f.svc.ListCases(ctx, sellerA, cases.Filters{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.ListCases(ctx, sellerB, cases.Filters{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := f.svc.ListCases(ctx, buyer, cases.Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
