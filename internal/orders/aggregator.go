package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/escrow"
	"github.com/angelmondragon/packfinderz-escrow/internal/notifications"
	dbpkg "github.com/angelmondragon/packfinderz-escrow/pkg/db"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

// EnsureOrder turns a paid quote into an order, exactly once per payment
// reference. The boolean reports whether this call created the order.
func (s *service) EnsureOrder(ctx context.Context, input EnsureOrderInput) (*models.Order, bool, error) {
	if err := s.validateEnsureInput(&input); err != nil {
		return nil, false, err
	}
	if err := s.verifier.Verify(input.Outcome); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment outcome signature is invalid")
	}

	existing, err := s.repo.FindByPaymentReference(ctx, input.PaymentReference)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by payment reference")
	}

	order, err := s.buildOrder(input, s.now())
	if err != nil {
		return nil, false, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, orderCreatedEvent(order)); err != nil {
			return err
		}
		return s.notifier.Send(ctx, tx, orderCreatedMessage(order))
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByPaymentReference(ctx, input.PaymentReference)
			if findErr == nil {
				return existing, false, nil
			}
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number collision")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"order_number":      order.OrderNumber,
			"payment_reference": order.PaymentReference,
			"status":            string(order.Status),
			"sub_orders":        len(order.SubOrders),
		})
		s.logg.Info(logCtx, "order created")
	}
	return order, true, nil
}

func (s *service) validateEnsureInput(input *EnsureOrderInput) error {
	input.PaymentReference = strings.TrimSpace(input.PaymentReference)
	if input.PaymentReference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if input.Outcome.Reference != input.PaymentReference {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment outcome does not match payment reference")
	}
	if !input.Outcome.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment outcome status is invalid")
	}
	if strings.TrimSpace(input.Outcome.Method) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}
	if input.Buyer.ID == uuid.Nil || strings.TrimSpace(input.Buyer.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id and email required")
	}
	if err := input.Address.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	quote := &input.Quote
	if quote.Currency == "" {
		quote.Currency = s.cfg.Currency
	}
	if !strings.EqualFold(quote.Currency, s.cfg.Currency) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", quote.Currency))
	}
	if len(quote.Groups) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quote has no seller groups")
	}

	seen := make(map[SellerID]struct{}, len(quote.Groups))
	for i := range quote.Groups {
		group := &quote.Groups[i]
		if uuid.UUID(group.SellerID) == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
		}
		if _, dup := seen[group.SellerID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller appears in more than one group").
				WithDetails(map[string]any{"seller_id": group.SellerID.String()})
		}
		seen[group.SellerID] = struct{}{}
		if len(group.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller group has no items").
				WithDetails(map[string]any{"seller_id": group.SellerID.String()})
		}

		subtotal := decimal.Zero
		for j := range group.Items {
			item := &group.Items[j]
			if item.Quantity <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive").
					WithDetails(map[string]any{"product_id": item.ProductID})
			}
			if item.UnitPrice.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative").
					WithDetails(map[string]any{"product_id": item.ProductID})
			}
			expected := escrow.Round(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
			if item.LineTotal.IsZero() {
				item.LineTotal = expected
			}
			if !escrow.Round(item.LineTotal).Equal(expected) {
				return pkgerrors.New(pkgerrors.CodeValidation, "line total does not match unit price times quantity").
					WithDetails(map[string]any{"product_id": item.ProductID, "expected": expected.String()})
			}
			subtotal = subtotal.Add(expected)
		}
		if group.Discount.IsNegative() || group.Discount.GreaterThan(subtotal) {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount must be between zero and the items subtotal").
				WithDetails(map[string]any{"seller_id": group.SellerID.String()})
		}

		choice, ok := quote.Shipping[group.SellerID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "missing shipping choice for seller").
				WithDetails(map[string]any{"seller_id": group.SellerID.String()})
		}
		if strings.TrimSpace(choice.Method) == "" || choice.Cost.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping choice needs a method and a non-negative cost").
				WithDetails(map[string]any{"seller_id": group.SellerID.String()})
		}
		if choice.ProviderID != nil && *choice.ProviderID != "" {
			if _, ok := s.shipping.Get(*choice.ProviderID); !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown shipping provider %q", *choice.ProviderID))
			}
		}
	}
	for sellerID := range quote.Shipping {
		if _, ok := seen[sellerID]; !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping choice for a seller with no items").
				WithDetails(map[string]any{"seller_id": sellerID.String()})
		}
	}
	return nil
}

func (s *service) orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	if s.cfg.OrderNumberPrefix == "" {
		return now.Format("20060102") + "-" + suffix
	}
	return s.cfg.OrderNumberPrefix + "-" + now.Format("20060102") + "-" + suffix
}

func (s *service) buildOrder(input EnsureOrderInput, now time.Time) (*models.Order, error) {
	confirmed := input.Outcome.Status == enums.PaymentOutcomeConfirmed
	status := enums.OrderStatusPaid
	paymentStatus := enums.PaymentStatusPaid
	if !confirmed {
		status = enums.OrderStatusFailed
		paymentStatus = enums.PaymentStatusFailed
	}

	order := &models.Order{
		ID:               uuid.New(),
		OrderNumber:      s.orderNumber(now),
		BuyerID:          input.Buyer.ID,
		BuyerName:        strings.TrimSpace(input.Buyer.Name),
		BuyerEmail:       strings.TrimSpace(input.Buyer.Email),
		PaymentMethod:    input.Outcome.Method,
		PaymentMethodID:  input.Outcome.MethodID,
		PaymentReference: input.PaymentReference,
		Currency:         strings.ToUpper(input.Quote.Currency),
		ItemsSubtotal:    decimal.Zero,
		ShippingTotal:    decimal.Zero,
		DiscountTotal:    decimal.Zero,
		GrandTotal:       decimal.Zero,
		Status:           status,
		PaymentStatus:    paymentStatus,
		PaymentMessage:   input.Outcome.Message,
		RefundedAmount:   decimal.Zero,
		ShippingAddress:  input.Address.Normalized(),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	note := "order created"
	for i, group := range input.Quote.Groups {
		choice := input.Quote.Shipping[group.SellerID]
		sub := models.SubOrder{
			ID:             uuid.New(),
			OrderID:        order.ID,
			SubOrderNumber: fmt.Sprintf("%s-%d", order.OrderNumber, i+1),
			Sequence:       i + 1,
			SellerID:       group.SellerID.UUID(),
			SellerName:     group.SellerName,
			SellerEmail:    group.SellerEmail,
			ShippingMethod: choice.Method,
			ShippingCost:   escrow.Round(choice.Cost),
			DiscountTotal:  escrow.Round(group.Discount),
			Status:         status,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if choice.ProviderID != nil && *choice.ProviderID != "" {
			providerID := *choice.ProviderID
			sub.ShippingProviderID = &providerID
		}

		subtotal := decimal.Zero
		for j, line := range group.Items {
			item := models.OrderItem{
				ID:           uuid.New(),
				SubOrderID:   sub.ID,
				OrderID:      order.ID,
				SellerID:     sub.SellerID,
				Position:     j + 1,
				ProductID:    line.ProductID,
				Title:        line.Title,
				VariantLabel: line.VariantLabel,
				CategoryPath: line.CategoryPath,
				Quantity:     line.Quantity,
				UnitPrice:    escrow.Round(line.UnitPrice),
				LineTotal:    escrow.Round(line.LineTotal),
				Status:       status,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			subtotal = subtotal.Add(item.LineTotal)
			sub.Quantity += item.Quantity
			sub.Items = append(sub.Items, item)
		}
		sub.ItemsSubtotal = subtotal
		sub.GrandTotal = escrow.Round(subtotal.Add(sub.ShippingCost).Sub(sub.DiscountTotal))
		sub.History = []models.SubOrderStatusHistory{{
			ID:         uuid.New(),
			SubOrderID: sub.ID,
			Sequence:   1,
			Status:     status,
			Note:       &note,
			ActorRole:  enums.ActorRoleSystem,
			CreatedAt:  now,
		}}
		if confirmed {
			alloc, err := escrow.NewAllocation(&sub, order.Currency, s.cfg.CommissionRate, now)
			if err != nil {
				return nil, err
			}
			sub.Allocation = alloc
		}

		order.ItemsSubtotal = order.ItemsSubtotal.Add(sub.ItemsSubtotal)
		order.ShippingTotal = order.ShippingTotal.Add(sub.ShippingCost)
		order.DiscountTotal = order.DiscountTotal.Add(sub.DiscountTotal)
		order.GrandTotal = order.GrandTotal.Add(sub.GrandTotal)
		order.Quantity += sub.Quantity
		order.SubOrders = append(order.SubOrders, sub)
	}

	if !order.ItemsSubtotal.Add(order.ShippingTotal).Sub(order.DiscountTotal).Equal(order.GrandTotal) {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "order totals do not add up")
	}
	return order, nil
}

func orderCreatedEvent(order *models.Order) outbox.DomainEvent {
	subIDs := make([]uuid.UUID, 0, len(order.SubOrders))
	for _, sub := range order.SubOrders {
		subIDs = append(subIDs, sub.ID)
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: string(enums.ActorRoleBuyer)},
		Version:       1,
		OccurredAt:    order.CreatedAt,
		Data: payloads.OrderCreatedEvent{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			BuyerID:          order.BuyerID,
			PaymentReference: order.PaymentReference,
			Status:           order.Status,
			GrandTotal:       order.GrandTotal,
			SubOrderIDs:      subIDs,
		},
	}
}

func orderCreatedMessage(order *models.Order) notifications.Message {
	if order.Status == enums.OrderStatusFailed {
		return withAggregate(notifications.PaymentFailed(order.BuyerEmail, order.OrderNumber), order.ID)
	}
	var lines []notifications.OrderLine
	for _, sub := range order.SubOrders {
		for _, item := range sub.Items {
			lines = append(lines, notifications.OrderLine{Title: item.Title, Quantity: item.Quantity, LineTotal: item.LineTotal})
		}
	}
	return withAggregate(notifications.OrderConfirmed(order.BuyerEmail, order.OrderNumber, order.Currency, order.GrandTotal, lines), order.ID)
}
