package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/notifications"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pagination"
)

// Service defines the order operations exposed to controllers, webhooks and
// the other escrow packages.
type Service interface {
	EnsureOrder(ctx context.Context, input EnsureOrderInput) (*models.Order, bool, error)
	TransitionSubOrder(ctx context.Context, input TransitionInput) (*models.Order, *TransitionResult, error)
	ApplyShippingUpdate(ctx context.Context, input ShippingUpdateInput) (*TransitionResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ListSubOrders(ctx context.Context, actor Actor, params pagination.Params, filters SubOrderFilters) (*SubOrderList, error)
	ListBuyerOrders(ctx context.Context, actor Actor, params pagination.Params, filters BuyerOrderFilters) (*BuyerOrderList, error)
	MutateOrder(ctx context.Context, orderID uuid.UUID, actor Actor, fn func(m *Mutation) error) (*models.Order, error)
	MutateOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, fn func(m *Mutation) error) (*models.Order, error)
	MutateByPaymentReferenceTx(ctx context.Context, tx *gorm.DB, reference string, actor Actor, fn func(m *Mutation) error) (*models.Order, error)
}

// Config carries the escrow settings the order aggregate needs.
type Config struct {
	Currency               string
	CommissionRate         decimal.Decimal
	PayoutEligibleStatuses []enums.OrderStatus
	OrderNumberPrefix      string
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Notifier notifications.Notifier
	Shipping shippingProviders
	Verifier OutcomeVerifier
	Logger   *logger.Logger
	Config   Config
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier notifications.Notifier
	shipping shippingProviders
	verifier OutcomeVerifier
	logg     *logger.Logger
	cfg      Config
	eligible map[enums.OrderStatus]bool
	now      func() time.Time
}

// NewService builds the orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Shipping == nil {
		return nil, fmt.Errorf("shipping providers required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("payment outcome verifier required")
	}
	cfg := params.Config
	if cfg.CommissionRate.IsNegative() || cfg.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be within [0,1]")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if len(cfg.PayoutEligibleStatuses) == 0 {
		cfg.PayoutEligibleStatuses = []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered}
	}
	eligible := make(map[enums.OrderStatus]bool, len(cfg.PayoutEligibleStatuses))
	for _, status := range cfg.PayoutEligibleStatuses {
		if !status.IsValid() || status.IsTerminal() {
			return nil, fmt.Errorf("status %q cannot trigger payout eligibility", status)
		}
		eligible[status] = true
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		shipping: params.Shipping,
		verifier: params.Verifier,
		logg:     params.Logger,
		cfg:      cfg,
		eligible: eligible,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) MutateOrder(ctx context.Context, orderID uuid.UUID, actor Actor, fn func(m *Mutation) error) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.MutateOrderTx(ctx, tx, orderID, actor, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) MutateOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor, fn func(m *Mutation) error) (*models.Order, error) {
	return s.mutate(ctx, tx, actor, func(repo Repository) (*models.Order, error) {
		return repo.LockByID(ctx, orderID)
	}, fn)
}

func (s *service) MutateByPaymentReferenceTx(ctx context.Context, tx *gorm.DB, reference string, actor Actor, fn func(m *Mutation) error) (*models.Order, error) {
	return s.mutate(ctx, tx, actor, func(repo Repository) (*models.Order, error) {
		return repo.LockByPaymentReference(ctx, reference)
	}, fn)
}

func (s *service) mutate(ctx context.Context, tx *gorm.DB, actor Actor, load func(Repository) (*models.Order, error), fn func(m *Mutation) error) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := load(repo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	m := &Mutation{Order: order, Actor: actor, ctx: ctx, now: s.now(), svc: s}
	if err := fn(m); err != nil {
		return nil, err
	}
	if !m.dirty {
		return order, nil
	}

	order.UpdatedAt = m.now
	if err := repo.SaveAggregate(ctx, order, &m.changes); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	for _, event := range m.events {
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
		}
	}
	for _, msg := range m.messages {
		if msg.To == "" {
			continue
		}
		if err := s.notifier.Send(ctx, tx, msg); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
		}
	}
	return order, nil
}

func (s *service) TransitionSubOrder(ctx context.Context, input TransitionInput) (*models.Order, *TransitionResult, error) {
	if input.SubOrderID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "sub-order id required")
	}
	sub, err := s.repo.FindSubOrder(ctx, input.SubOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sub-order")
	}
	if err := authorizeSeller(input.Actor, sub.SellerID); err != nil {
		return nil, nil, err
	}

	var result *TransitionResult
	order, err := s.MutateOrder(ctx, sub.OrderID, input.Actor, func(m *Mutation) error {
		locked, err := m.SubOrder(input.SubOrderID)
		if err != nil {
			return err
		}
		result, err = m.Transition(locked, input.Request)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.logTransition(ctx, input, result)
	return order, result, nil
}

func (s *service) logTransition(ctx context.Context, input TransitionInput, result *TransitionResult) {
	if s.logg == nil || result == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"sub_order_id":      input.SubOrderID.String(),
		"from":              string(result.From),
		"to":                string(result.To),
		"requested":         string(input.Request.Target),
		"released_to_buyer": result.ReleasedToBuyer.String(),
		"noop":              result.NoOp,
	})
	ctx = s.logg.WithActorRole(ctx, string(input.Actor.Role))
	s.logg.Info(ctx, "sub-order transition applied")
}

// authorizeSeller allows the owning seller plus admins and the system.
func authorizeSeller(actor Actor, sellerID uuid.UUID) error {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return nil
	case enums.ActorRoleSeller:
		if actor.ID == sellerID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "sub-order does not belong to the caller")
}
