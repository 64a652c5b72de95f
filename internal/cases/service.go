// Package cases arbitrates returns and complaints opened against delivered
// sub-orders, including refunds, escalation and SLA tracking.
package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/escrow"
	"github.com/angelmondragon/packfinderz-escrow/internal/notifications"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

const maxMessageLength = 4000

// ItemInput scopes a case to a quantity of one order item.
type ItemInput struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Quantity    int       `json:"quantity"`
}

// CreateInput opens a case on behalf of the buyer.
type CreateInput struct {
	SubOrderID  uuid.UUID
	Actor       orders.Actor
	Type        enums.ReturnCaseType
	Reason      string
	Description *string
	Items       []ItemInput
}

// SellerUpdateInput is the seller's review decision before resolution.
type SellerUpdateInput struct {
	Status enums.ReturnCaseStatus
	Note   *string
}

// ResolveInput closes a case. RefundAmount is the total refund for the case
// and is required for partial refunds only.
type ResolveInput struct {
	Outcome      enums.ReturnCaseOutcome
	RefundAmount *decimal.Decimal
	Note         *string
}

// CaseView pairs a case with its SLA state at read time.
type CaseView struct {
	Case *models.ReturnCase `json:"case"`
	SLA  SLAStatus          `json:"sla"`
}

// Config holds the return window and SLA offsets.
type Config struct {
	ReturnWindow     time.Duration
	FirstResponseSLA time.Duration
	ResolutionSLA    time.Duration
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderMutator interface {
	MutateOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor orders.Actor, fn func(m *orders.Mutation) error) (*models.Order, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages return and complaint cases.
type Service interface {
	CreateReturnRequest(ctx context.Context, input CreateInput) (*models.ReturnCase, error)
	UpdateReturnCaseForSeller(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input SellerUpdateInput) (*models.ReturnCase, error)
	ResolveReturnCaseForSeller(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input ResolveInput) (*models.ReturnCase, error)
	EscalateReturnCaseForAdmin(ctx context.Context, caseID uuid.UUID, actor orders.Actor, note *string) (*models.ReturnCase, error)
	ResolveReturnCaseForAdmin(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input ResolveInput) (*models.ReturnCase, error)
	AddMessage(ctx context.Context, caseID uuid.UUID, actor orders.Actor, body string) (*models.CaseMessage, error)
	ListMessages(ctx context.Context, caseID uuid.UUID, actor orders.Actor) ([]models.CaseMessage, error)
	GetCase(ctx context.Context, caseID uuid.UUID, actor orders.Actor) (*CaseView, error)
	ListCases(ctx context.Context, actor orders.Actor, filters Filters) ([]CaseView, error)
	SellerSLAMetrics(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, from, to time.Time) (*SellerMetrics, error)
}

// ServiceParams wires the case manager.
type ServiceParams struct {
	Repo     Repository
	Orders   orderMutator
	Tx       txRunner
	Outbox   outboxPublisher
	Notifier notifications.Notifier
	Logger   *logger.Logger
	Config   Config
	Now      func() time.Time
}

type service struct {
	repo     Repository
	orders   orderMutator
	tx       txRunner
	outbox   outboxPublisher
	notifier notifications.Notifier
	logg     *logger.Logger
	cfg      Config
	now      func() time.Time
}

// NewService validates dependencies and applies config defaults.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cases repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
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
	cfg := params.Config
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = 14 * 24 * time.Hour
	}
	if cfg.FirstResponseSLA <= 0 {
		cfg.FirstResponseSLA = 48 * time.Hour
	}
	if cfg.ResolutionSLA <= 0 {
		cfg.ResolutionSLA = 168 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		cfg:      cfg,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) CreateReturnRequest(ctx context.Context, input CreateInput) (*models.ReturnCase, error) {
	if input.SubOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sub-order id required")
	}
	if input.Actor.Role != enums.ActorRoleBuyer && input.Actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers open return cases")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid case type %q", input.Type))
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	sub, err := s.repo.FindSubOrder(ctx, input.SubOrderID)
	if err != nil {
		return nil, notFoundOr(err, "sub-order not found", "load sub-order")
	}

	var created *models.ReturnCase
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		_, err := s.orders.MutateOrderTx(ctx, tx, sub.OrderID, input.Actor, func(m *orders.Mutation) error {
			if input.Actor.Role == enums.ActorRoleBuyer && m.Order.BuyerID != input.Actor.ID {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found")
			}
			locked, err := m.SubOrder(input.SubOrderID)
			if err != nil {
				return err
			}
			existing, err := repo.FindBySubOrder(ctx, locked.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing case")
			}
			if existing != nil {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "a case already exists for this sub-order").
					WithDetails(map[string]any{"case_number": existing.CaseNumber})
			}
			if locked.Status != enums.OrderStatusDelivered {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cases can only be opened for delivered sub-orders")
			}
			now := s.now()
			if input.Type == enums.ReturnCaseTypeReturn {
				if locked.DeliveredAt == nil || now.After(locked.DeliveredAt.Add(s.cfg.ReturnWindow)) {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "return window has closed; open a complaint instead")
				}
			}
			items, err := caseItems(locked, input.Items)
			if err != nil {
				return err
			}

			rc := &models.ReturnCase{
				ID:                 uuid.New(),
				CaseNumber:         "RC-" + locked.SubOrderNumber,
				SubOrderID:         locked.ID,
				OrderID:            m.Order.ID,
				BuyerID:            m.Order.BuyerID,
				SellerID:           locked.SellerID,
				Type:               input.Type,
				Status:             enums.ReturnCaseStatusPendingSellerReview,
				Reason:             reason,
				Description:        trimmed(input.Description),
				RequestedOn:        now,
				FirstResponseDueOn: now.Add(s.cfg.FirstResponseSLA),
				ResolutionDueOn:    now.Add(s.cfg.ResolutionSLA),
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			for i := range items {
				items[i].ReturnCaseID = rc.ID
			}
			rc.Items = items
			rc.History = []models.ReturnCaseHistory{s.history(rc, input.Actor.Role, nil)}
			if err := repo.Create(ctx, rc); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return case")
			}
			if err := s.emit(ctx, tx, rc, enums.EventReturnCaseOpened, input.Actor.Role); err != nil {
				return err
			}
			created = rc
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, created, "return case opened")
	return created, nil
}

func caseItems(sub *models.SubOrder, requested []ItemInput) ([]models.ReturnCaseItem, error) {
	byID := make(map[uuid.UUID]models.OrderItem, len(sub.Items))
	for _, item := range sub.Items {
		byID[item.ID] = item
	}
	if len(requested) == 0 {
		out := make([]models.ReturnCaseItem, 0, len(sub.Items))
		for _, item := range sub.Items {
			out = append(out, models.ReturnCaseItem{ID: uuid.New(), OrderItemID: item.ID, Quantity: item.Quantity})
		}
		return out, nil
	}
	seen := make(map[uuid.UUID]bool, len(requested))
	out := make([]models.ReturnCaseItem, 0, len(requested))
	for _, req := range requested {
		item, ok := byID[req.OrderItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %s does not belong to the sub-order", req.OrderItemID))
		}
		if seen[req.OrderItemID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %s listed twice", req.OrderItemID))
		}
		seen[req.OrderItemID] = true
		if req.Quantity < 1 || req.Quantity > item.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for item %s must be between 1 and %d", req.OrderItemID, item.Quantity))
		}
		out = append(out, models.ReturnCaseItem{ID: uuid.New(), OrderItemID: item.ID, Quantity: req.Quantity})
	}
	return out, nil
}

func (s *service) UpdateReturnCaseForSeller(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input SellerUpdateInput) (*models.ReturnCase, error) {
	if input.Status != enums.ReturnCaseStatusApproved && input.Status != enums.ReturnCaseStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller review must approve or reject the case")
	}
	var updated *models.ReturnCase
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rc, err := s.lockForSeller(ctx, repo, caseID, actor)
		if err != nil {
			return err
		}
		switch rc.Status {
		case enums.ReturnCaseStatusPendingSellerReview, enums.ReturnCaseStatusApproved, enums.ReturnCaseStatusRejected:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("case is %s and no longer accepts seller review", rc.Status))
		}
		now := s.now()
		if rc.FirstRespondedOn == nil {
			rc.FirstRespondedOn = &now
		}
		if rc.Status == input.Status {
			updated = rc
			return repo.Save(ctx, rc)
		}
		rc.Status = input.Status
		rc.UpdatedAt = now
		if err := s.record(ctx, tx, repo, rc, actor.Role, input.Note, enums.EventReturnCaseUpdated); err != nil {
			return err
		}
		updated = rc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, updated, "return case reviewed by seller")
	return updated, nil
}

func (s *service) ResolveReturnCaseForSeller(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input ResolveInput) (*models.ReturnCase, error) {
	return s.resolve(ctx, caseID, actor, input, false)
}

func (s *service) ResolveReturnCaseForAdmin(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input ResolveInput) (*models.ReturnCase, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return s.resolve(ctx, caseID, actor, input, true)
}

func validateResolution(input ResolveInput) error {
	if !input.Outcome.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid outcome %q", input.Outcome))
	}
	if input.Outcome == enums.ReturnCaseOutcomePartialRefund {
		if input.RefundAmount == nil || !input.RefundAmount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "partial refund requires a positive refund amount")
		}
		return nil
	}
	if input.RefundAmount != nil && input.Outcome != enums.ReturnCaseOutcomeFullRefund {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount only applies to refund outcomes")
	}
	return nil
}

func (s *service) resolve(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input ResolveInput, byAdmin bool) (*models.ReturnCase, error) {
	if err := validateResolution(input); err != nil {
		return nil, err
	}
	var resolved *models.ReturnCase
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var (
			rc  *models.ReturnCase
			err error
		)
		if byAdmin {
			rc, err = s.lock(ctx, repo, caseID, actor)
		} else {
			rc, err = s.lockForSeller(ctx, repo, caseID, actor)
		}
		if err != nil {
			return err
		}
		settled, err := resolvable(rc, byAdmin)
		if err != nil {
			return err
		}
		if settled {
			resolved = rc
			return nil
		}

		var buyerEmail, sellerEmail string
		_, err = s.orders.MutateOrderTx(ctx, tx, rc.OrderID, actor, func(m *orders.Mutation) error {
			sub, err := m.SubOrder(rc.SubOrderID)
			if err != nil {
				return err
			}
			buyerEmail, sellerEmail = m.Order.BuyerEmail, sub.SellerEmail
			if !input.Outcome.MovesMoney() {
				return nil
			}
			refunded, err := refund(m, sub, rc, input)
			if err != nil {
				return err
			}
			rc.RefundAmount = decimal.NullDecimal{Decimal: refunded, Valid: true}
			ref := m.Order.PaymentReference
			rc.PaymentReference = &ref
			return nil
		})
		if err != nil {
			return err
		}

		now := s.now()
		role := actor.Role
		outcome := input.Outcome
		rc.Outcome = &outcome
		rc.ResolutionNote = trimmed(input.Note)
		rc.ResolvedBy = &role
		rc.ResolvedOn = &now
		rc.Status = enums.ReturnCaseStatusCompleted
		rc.UpdatedAt = now
		if !byAdmin && rc.FirstRespondedOn == nil {
			rc.FirstRespondedOn = &now
		}
		if err := s.record(ctx, tx, repo, rc, role, input.Note, enums.EventReturnCaseResolved); err != nil {
			return err
		}

		note := ""
		if rc.ResolutionNote != nil {
			note = *rc.ResolutionNote
		}
		recipients := []string{buyerEmail}
		if byAdmin {
			recipients = append(recipients, sellerEmail)
		}
		for _, to := range recipients {
			if err := s.notify(ctx, tx, rc, notifications.CaseResolved(to, rc.CaseNumber, string(outcome), note)); err != nil {
				return err
			}
		}
		resolved = rc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, resolved, "return case resolved")
	return resolved, nil
}

// resolvable enforces who may close the case in its current state. A case
// already closed at the caller's authority is settled and returned as is; an
// admin decision supersedes a seller resolution.
func resolvable(rc *models.ReturnCase, byAdmin bool) (bool, error) {
	if rc.Status == enums.ReturnCaseStatusCompleted {
		if byAdmin {
			return rc.ResolvedBy != nil && *rc.ResolvedBy == enums.ActorRoleAdmin, nil
		}
		return true, nil
	}
	if !byAdmin && rc.Status == enums.ReturnCaseStatusUnderAdminReview {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "case is under admin review")
	}
	return false, nil
}

// refund moves money for the case and returns the case's cumulative refund.
// Amounts already refunded for this case are not paid twice.
func refund(m *orders.Mutation, sub *models.SubOrder, rc *models.ReturnCase, input ResolveInput) (decimal.Decimal, error) {
	already := decimal.Zero
	if rc.RefundAmount.Valid {
		already = rc.RefundAmount.Decimal
	}

	if input.Outcome == enums.ReturnCaseOutcomeFullRefund {
		if sub.Status == enums.OrderStatusRefunded {
			return already, nil
		}
		released, err := refundCaseItems(m, sub, rc, input.Note)
		if err != nil {
			return decimal.Zero, err
		}
		syncPaymentStatus(m)
		return escrow.Round(already.Add(released)), nil
	}

	target := escrow.Round(*input.RefundAmount)
	summary, err := m.Summary(sub)
	if err != nil {
		return decimal.Zero, err
	}
	delta := target.Sub(already)
	if delta.GreaterThan(summary.Remaining()) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds the funds still held for the sub-order").
			WithDetails(map[string]any{"remaining": summary.Remaining().StringFixed(2)})
	}
	if !delta.IsPositive() {
		return already, nil
	}
	note := "case " + rc.CaseNumber + " partial refund"
	released, err := m.ReleaseToBuyer(sub, delta, note)
	if err != nil {
		return decimal.Zero, err
	}
	after, err := m.Summary(sub)
	if err != nil {
		return decimal.Zero, err
	}
	if after.Remaining().IsZero() && sub.Status != enums.OrderStatusRefunded {
		if _, err := m.Transition(sub, orders.TransitionRequest{Target: enums.OrderStatusRefunded, Note: input.Note}); err != nil {
			return decimal.Zero, err
		}
	}
	syncPaymentStatus(m)
	return escrow.Round(already.Add(released)), nil
}

// refundCaseItems refunds exactly what the case covers. Items returned in
// full move to Refunded; partial quantities release their pro-rated share
// without changing item status. Only a case covering every open item at full
// quantity refunds the whole sub-order, shipping included.
func refundCaseItems(m *orders.Mutation, sub *models.SubOrder, rc *models.ReturnCase, note *string) (decimal.Decimal, error) {
	whole, itemIDs, target := caseScope(sub, rc)
	if whole {
		result, err := m.Transition(sub, orders.TransitionRequest{Target: enums.OrderStatusRefunded, Note: note})
		if err != nil {
			return decimal.Zero, err
		}
		return result.ReleasedToBuyer, nil
	}

	already := decimal.Zero
	if rc.RefundAmount.Valid {
		already = rc.RefundAmount.Decimal
	}
	released := decimal.Zero
	// Moving items releases their full refundable amount, so after an earlier
	// partial refund only the difference is released.
	if len(itemIDs) > 0 && !already.IsPositive() {
		result, err := m.Transition(sub, orders.TransitionRequest{Target: enums.OrderStatusRefunded, ItemIDs: itemIDs, Note: note})
		if err != nil {
			return decimal.Zero, err
		}
		released = result.ReleasedToBuyer
	}
	owed := target.Sub(already).Sub(released)
	if owed.IsPositive() {
		extra, err := m.ReleaseToBuyer(sub, owed, "case "+rc.CaseNumber+" partial quantity refund")
		if err != nil {
			return decimal.Zero, err
		}
		released = released.Add(extra)
	}
	return released, nil
}

// caseScope splits the case items into full-quantity items, which move to
// Refunded, and the refundable amount of everything the case covers.
func caseScope(sub *models.SubOrder, rc *models.ReturnCase) (bool, []uuid.UUID, decimal.Decimal) {
	requested := make(map[uuid.UUID]int, len(rc.Items))
	for _, item := range rc.Items {
		requested[item.OrderItemID] = item.Quantity
	}

	whole := true
	var itemIDs []uuid.UUID
	target := decimal.Zero
	for _, item := range sub.Items {
		qty, ok := requested[item.ID]
		full := ok && qty >= item.Quantity
		if !full && !item.Status.IsTerminal() {
			whole = false
		}
		if !ok || qty < 1 || item.Quantity < 1 {
			continue
		}
		refundable := escrow.ItemRefundable(item.LineTotal, sub.DiscountTotal, sub.ItemsSubtotal)
		if full {
			itemIDs = append(itemIDs, item.ID)
			target = target.Add(refundable)
			continue
		}
		share := refundable.Mul(decimal.NewFromInt(int64(qty))).Div(decimal.NewFromInt(int64(item.Quantity)))
		target = target.Add(escrow.Round(share))
	}
	return whole, itemIDs, target
}

func syncPaymentStatus(m *orders.Mutation) {
	switch {
	case !m.Order.RefundedAmount.LessThan(m.Order.GrandTotal):
		m.Order.PaymentStatus = enums.PaymentStatusRefunded
	case m.Order.RefundedAmount.IsPositive():
		m.Order.PaymentStatus = enums.PaymentStatusPartialRefund
	}
	m.Touch()
}

func (s *service) EscalateReturnCaseForAdmin(ctx context.Context, caseID uuid.UUID, actor orders.Actor, note *string) (*models.ReturnCase, error) {
	var escalated *models.ReturnCase
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rc, err := s.lock(ctx, repo, caseID, actor)
		if err != nil {
			return err
		}
		switch rc.Status {
		case enums.ReturnCaseStatusCompleted:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "completed cases cannot be escalated")
		case enums.ReturnCaseStatusUnderAdminReview:
			escalated = rc
			return nil
		}
		now := s.now()
		if actor.Role == enums.ActorRoleSeller && rc.FirstRespondedOn == nil {
			rc.FirstRespondedOn = &now
		}
		rc.Status = enums.ReturnCaseStatusUnderAdminReview
		rc.UpdatedAt = now
		if err := s.record(ctx, tx, repo, rc, actor.Role, note, enums.EventReturnCaseUpdated); err != nil {
			return err
		}

		order, err := repo.FindOrder(ctx, rc.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		sub, err := repo.FindSubOrder(ctx, rc.SubOrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sub-order")
		}
		for _, to := range []string{order.BuyerEmail, sub.SellerEmail} {
			if err := s.notify(ctx, tx, rc, notifications.CaseEscalated(to, rc.CaseNumber)); err != nil {
				return err
			}
		}
		escalated = rc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, escalated, "return case escalated")
	return escalated, nil
}

func (s *service) AddMessage(ctx context.Context, caseID uuid.UUID, actor orders.Actor, body string) (*models.CaseMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body required")
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	rc, err := s.load(ctx, caseID, actor)
	if err != nil {
		return nil, err
	}
	msg := &models.CaseMessage{
		ID:           uuid.New(),
		ReturnCaseID: rc.ID,
		AuthorID:     actor.ID,
		AuthorRole:   actor.Role,
		Body:         body,
		CreatedAt:    s.now(),
	}
	if err := s.repo.AddMessage(ctx, msg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save case message")
	}
	return msg, nil
}

func (s *service) ListMessages(ctx context.Context, caseID uuid.UUID, actor orders.Actor) ([]models.CaseMessage, error) {
	rc, err := s.load(ctx, caseID, actor)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, rc.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list case messages")
	}
	return messages, nil
}

func (s *service) GetCase(ctx context.Context, caseID uuid.UUID, actor orders.Actor) (*CaseView, error) {
	rc, err := s.load(ctx, caseID, actor)
	if err != nil {
		return nil, err
	}
	return &CaseView{Case: rc, SLA: Evaluate(rc, s.now())}, nil
}

func (s *service) ListCases(ctx context.Context, actor orders.Actor, filters Filters) ([]CaseView, error) {
	switch actor.Role {
	case enums.ActorRoleSeller:
		id := actor.ID
		filters.SellerID = &id
	case enums.ActorRoleBuyer:
		id := actor.ID
		filters.BuyerID = &id
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
	list, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cases")
	}
	now := s.now()
	out := make([]CaseView, 0, len(list))
	for i := range list {
		out = append(out, CaseView{Case: &list[i], SLA: Evaluate(&list[i], now)})
	}
	return out, nil
}

func (s *service) SellerSLAMetrics(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, from, to time.Time) (*SellerMetrics, error) {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	case enums.ActorRoleSeller:
		if actor.ID != sellerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "sellers only see their own metrics")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller or admin role required")
	}
	now := s.now()
	if to.IsZero() {
		to = now.Add(time.Second)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -90)
	}
	if !from.Before(to) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	list, err := s.repo.ListForSeller(ctx, sellerID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller cases")
	}
	metrics := ComputeSellerMetrics(sellerID, from, to, list, now)
	return &metrics, nil
}

// load reads a case the actor may see. Cases of other parties read as not
// found.
func (s *service) load(ctx context.Context, caseID uuid.UUID, actor orders.Actor) (*models.ReturnCase, error) {
	rc, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return nil, notFoundOr(err, "case not found", "load case")
	}
	if !canView(actor, rc) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "case not found")
	}
	return rc, nil
}

func (s *service) lock(ctx context.Context, repo Repository, caseID uuid.UUID, actor orders.Actor) (*models.ReturnCase, error) {
	rc, err := repo.LockByID(ctx, caseID)
	if err != nil {
		return nil, notFoundOr(err, "case not found", "lock case")
	}
	if !canView(actor, rc) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "case not found")
	}
	return rc, nil
}

func (s *service) lockForSeller(ctx context.Context, repo Repository, caseID uuid.UUID, actor orders.Actor) (*models.ReturnCase, error) {
	if actor.Role != enums.ActorRoleSeller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller role required")
	}
	return s.lock(ctx, repo, caseID, actor)
}

func canView(actor orders.Actor, rc *models.ReturnCase) bool {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	case enums.ActorRoleBuyer:
		return rc.BuyerID == actor.ID
	case enums.ActorRoleSeller:
		return rc.SellerID == actor.ID
	}
	return false
}

func (s *service) history(rc *models.ReturnCase, role enums.ActorRole, note *string) models.ReturnCaseHistory {
	return models.ReturnCaseHistory{
		ID:           uuid.New(),
		ReturnCaseID: rc.ID,
		Status:       rc.Status,
		ActorRole:    role,
		Note:         trimmed(note),
		CreatedAt:    s.now(),
	}
}

// record saves the case with a history row and the matching outbox event.
func (s *service) record(ctx context.Context, tx *gorm.DB, repo Repository, rc *models.ReturnCase, role enums.ActorRole, note *string, eventType enums.OutboxEventType) error {
	if err := repo.Save(ctx, rc); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save case")
	}
	entry := s.history(rc, role, note)
	if err := repo.AddHistory(ctx, &entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save case history")
	}
	rc.History = append(rc.History, entry)
	return s.emit(ctx, tx, rc, eventType, role)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, rc *models.ReturnCase, eventType enums.OutboxEventType, role enums.ActorRole) error {
	data := payloads.ReturnCaseEvent{
		CaseID:     rc.ID,
		CaseNumber: rc.CaseNumber,
		OrderID:    rc.OrderID,
		SubOrderID: rc.SubOrderID,
		BuyerID:    rc.BuyerID,
		SellerID:   rc.SellerID,
		Type:       rc.Type,
		Status:     rc.Status,
		Outcome:    rc.Outcome,
		ActorRole:  role,
		OccurredAt: s.now(),
	}
	if rc.RefundAmount.Valid {
		amount := rc.RefundAmount.Decimal
		data.RefundAmount = &amount
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturnCase,
		AggregateID:   rc.ID,
		Actor:         &outbox.ActorRef{Role: string(role)},
		Data:          data,
		Version:       1,
		OccurredAt:    data.OccurredAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit case event")
	}
	return nil
}

func (s *service) notify(ctx context.Context, tx *gorm.DB, rc *models.ReturnCase, msg notifications.Message) error {
	if msg.To == "" {
		return nil
	}
	msg.AggregateID = rc.ID
	if err := s.notifier.Send(ctx, tx, msg); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
	}
	return nil
}

func (s *service) log(ctx context.Context, rc *models.ReturnCase, msg string) {
	if s.logg == nil || rc == nil {
		return
	}
	ctx = s.logg.WithSellerID(ctx, rc.SellerID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"case_number":  rc.CaseNumber,
		"order_id":     rc.OrderID.String(),
		"sub_order_id": rc.SubOrderID.String(),
		"status":       string(rc.Status),
	})
	s.logg.Info(ctx, msg)
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	out := strings.TrimSpace(*v)
	if out == "" {
		return nil
	}
	return &out
}
