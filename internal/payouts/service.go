// Package payouts pays sellers the escrow that became payout eligible.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/escrow"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/metrics"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

const maxErrorRefLen = 255

var (
	errClaimBelowThreshold = errors.New("claimed payout below threshold")
	errRunAbandoned        = errors.New("payout run abandoned while processing")
)

// RunResult reports one seller payout run.
type RunResult struct {
	RunID             *uuid.UUID            `json:"run_id,omitempty"`
	SellerID          uuid.UUID             `json:"seller_id"`
	Status            enums.PayoutRunStatus `json:"status"`
	Total             decimal.Decimal       `json:"total"`
	AllocationCount   int                   `json:"allocation_count"`
	ProviderReference string                `json:"provider_reference,omitempty"`
	FailureReason     string                `json:"failure_reason,omitempty"`
}

// Succeeded reports whether the run finished without a payout failure.
// Below-threshold and empty runs are successful no-ops.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Status != enums.PayoutRunStatusFailed
}

// Config bounds payout runs. A run still processing after StaleAfter is
// reconciled against the transfer provider.
type Config struct {
	Currency      string
	MinimumPayout decimal.Decimal
	BatchSize     int
	Parallelism   int
	StaleAfter    time.Duration
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

// Service runs seller payouts.
type Service interface {
	RunSellerPayouts(ctx context.Context, sellerID uuid.UUID) (*RunResult, error)
	RunAllSellers(ctx context.Context) ([]*RunResult, error)
	ReconcileStaleRuns(ctx context.Context) ([]*RunResult, error)
	RegisterAccount(ctx context.Context, sellerID uuid.UUID, stripeAccountID string) (*models.PayoutAccount, error)
	ListRuns(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutRun, error)
}

// ServiceParams wires the payout engine.
type ServiceParams struct {
	Repo    Repository
	Orders  orderMutator
	Tx      txRunner
	Outbox  outboxPublisher
	Gateway TransferGateway
	Metrics *metrics.PayoutMetrics
	Logger  *logger.Logger
	Config  Config
	Now     func() time.Time
}

type service struct {
	repo    Repository
	orders  orderMutator
	tx      txRunner
	outbox  outboxPublisher
	gateway TransferGateway
	metrics *metrics.PayoutMetrics
	logg    *logger.Logger
	cfg     Config
	now     func() time.Time
}

// NewService validates dependencies and applies config defaults.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
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
	if params.Gateway == nil {
		return nil, fmt.Errorf("transfer gateway required")
	}
	cfg := params.Config
	if cfg.MinimumPayout.IsNegative() {
		return nil, fmt.Errorf("minimum payout must not be negative")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		tx:      params.Tx,
		outbox:  params.Outbox,
		gateway: params.Gateway,
		metrics: params.Metrics,
		logg:    params.Logger,
		cfg:     cfg,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

type claim struct {
	allocationID uuid.UUID
	orderID      uuid.UUID
	amount       decimal.Decimal
}

func (s *service) RunSellerPayouts(ctx context.Context, sellerID uuid.UUID) (*RunResult, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	result := &RunResult{SellerID: sellerID, Total: decimal.Zero}

	candidates, err := s.repo.ListPayable(ctx, sellerID, s.cfg.BatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payable allocations")
	}
	planned, total, err := plan(candidates)
	if err != nil {
		return nil, err
	}
	result.Total = total
	result.AllocationCount = len(planned)
	if len(planned) == 0 {
		result.Status = enums.PayoutRunStatusNothingToPay
		return s.finish(ctx, result), nil
	}
	if total.LessThan(s.cfg.MinimumPayout) {
		result.Status = enums.PayoutRunStatusBelowThreshold
		return s.finish(ctx, result), nil
	}

	account, err := s.repo.FindAccount(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout account")
	}
	if account == nil {
		result.Status = enums.PayoutRunStatusFailed
		result.FailureReason = "seller has no payout account"
		return s.finish(ctx, result), nil
	}

	run := &models.PayoutRun{
		ID:        uuid.New(),
		SellerID:  sellerID,
		Status:    enums.PayoutRunStatusProcessing,
		Currency:  s.cfg.Currency,
		StartedAt: s.now(),
	}
	claimed, err := s.claim(ctx, run, planned)
	if errors.Is(err, errClaimBelowThreshold) {
		result.Status = enums.PayoutRunStatusBelowThreshold
		return s.finish(ctx, result), nil
	}
	if err != nil {
		return nil, err
	}
	result.RunID = &run.ID
	result.Total = run.TotalAmount
	result.AllocationCount = len(claimed)

	transfer, transferErr := s.gateway.Transfer(ctx, TransferRequest{
		RunID:       run.ID,
		SellerID:    sellerID,
		Destination: account.StripeAccountID,
		Amount:      run.TotalAmount,
		Currency:    run.Currency,
	})
	if transferErr != nil {
		result.Status = enums.PayoutRunStatusFailed
		result.FailureReason = transferErr.Error()
		if err := s.settle(ctx, run, claimed, nil, transferErr); err != nil {
			return nil, err
		}
		return s.finish(ctx, result), nil
	}

	if err := s.settle(ctx, run, claimed, transfer, nil); err != nil {
		return nil, err
	}
	result.Status = enums.PayoutRunStatusCompleted
	result.ProviderReference = transfer.Reference
	s.metrics.AddTransferred(run.Currency, run.TotalAmount)
	return s.finish(ctx, result), nil
}

// plan folds every candidate and keeps the ones with money outstanding.
func plan(candidates []models.EscrowAllocation) ([]claim, decimal.Decimal, error) {
	total := decimal.Zero
	planned := make([]claim, 0, len(candidates))
	for _, alloc := range candidates {
		summary, err := escrow.Fold(alloc.CommissionRate, alloc.Entries)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !summary.Eligible || !summary.Outstanding.IsPositive() {
			continue
		}
		planned = append(planned, claim{allocationID: alloc.ID, orderID: alloc.OrderID, amount: summary.Outstanding})
		total = total.Add(summary.Outstanding)
	}
	return planned, total, nil
}

// claim moves the planned allocations to Processing under their order locks.
// Allocations another run claimed in the meantime are dropped.
func (s *service) claim(ctx context.Context, run *models.PayoutRun, planned []claim) ([]claim, error) {
	var claimed []claim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claimed = claimed[:0]
		groups := groupByOrder(planned)
		for _, orderID := range sortedOrderIDs(planned) {
			group := groups[orderID]
			_, err := s.orders.MutateOrderTx(ctx, tx, orderID, orders.SystemActor, func(m *orders.Mutation) error {
				for _, c := range group {
					sub, err := m.AllocationSubOrder(c.allocationID)
					if err != nil {
						return err
					}
					if !isPayable(sub.Allocation.PayoutStatus) {
						continue
					}
					summary, err := m.Summary(sub)
					if err != nil {
						return err
					}
					amount := decimal.Min(c.amount, summary.Outstanding)
					if !amount.IsPositive() {
						continue
					}
					if err := m.SetPayoutStatus(sub, enums.PayoutStatusProcessing, &run.ID, nil); err != nil {
						return err
					}
					claimed = append(claimed, claim{allocationID: c.allocationID, orderID: orderID, amount: amount})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		total := decimal.Zero
		for _, c := range claimed {
			total = total.Add(c.amount)
		}
		if len(claimed) == 0 || total.LessThan(s.cfg.MinimumPayout) {
			return errClaimBelowThreshold
		}
		run.TotalAmount = total
		run.AllocationCount = len(claimed)
		if err := s.repo.WithTx(tx).CreateRun(ctx, run); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout run")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// settle writes the outcome of the transfer: ReleaseToSeller entries and Paid
// on success, Failed with an error reference otherwise. Ledger history is kept
// either way.
func (s *service) settle(ctx context.Context, run *models.PayoutRun, claimed []claim, transfer *TransferResult, transferErr error) error {
	finished := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		groups := groupByOrder(claimed)
		for _, orderID := range sortedOrderIDs(claimed) {
			_, err := s.orders.MutateOrderTx(ctx, tx, orderID, orders.SystemActor, func(m *orders.Mutation) error {
				for _, c := range groups[orderID] {
					sub, err := m.AllocationSubOrder(c.allocationID)
					if err != nil {
						return err
					}
					if sub.Allocation.PayoutStatus != enums.PayoutStatusProcessing {
						continue
					}
					if transferErr != nil {
						ref := errorRef(run.ID, transferErr)
						if err := m.SetPayoutStatus(sub, enums.PayoutStatusFailed, &run.ID, &ref); err != nil {
							return err
						}
						continue
					}
					if _, err := m.ReleaseToSeller(sub, c.amount, run.ID, "payout "+transfer.Reference); err != nil {
						return err
					}
					if err := m.SetPayoutStatus(sub, enums.PayoutStatusPaid, &run.ID, nil); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		allocationIDs := make([]uuid.UUID, 0, len(claimed))
		for _, c := range claimed {
			allocationIDs = append(allocationIDs, c.allocationID)
		}
		run.FinishedAt = &finished
		event := outbox.DomainEvent{
			AggregateType: enums.AggregatePayoutRun,
			AggregateID:   run.ID,
			Version:       1,
			OccurredAt:    finished,
		}
		if transferErr != nil {
			reason := truncate(transferErr.Error(), maxErrorRefLen)
			run.Status = enums.PayoutRunStatusFailed
			run.FailureReason = &reason
			event.EventType = enums.EventPayoutFailed
			event.Data = payloads.PayoutFailedEvent{
				RunID:         run.ID,
				SellerID:      run.SellerID,
				Amount:        run.TotalAmount,
				AllocationIDs: allocationIDs,
				Reason:        reason,
			}
		} else {
			ref := transfer.Reference
			run.Status = enums.PayoutRunStatusCompleted
			run.ProviderReference = &ref
			event.EventType = enums.EventPayoutCompleted
			event.Data = payloads.PayoutCompletedEvent{
				RunID:             run.ID,
				SellerID:          run.SellerID,
				Amount:            run.TotalAmount,
				AllocationIDs:     allocationIDs,
				ProviderReference: ref,
			}
		}
		if err := s.repo.WithTx(tx).UpdateRun(ctx, run); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout run")
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout event")
		}
		return nil
	})
}

// ReconcileStaleRuns closes runs left processing past the stale cutoff, which
// happens when the process dies between claim and settle or settle fails
// after the transfer. A run whose transfer reached the provider settles as
// paid. Any other run fails, so the next run picks its allocations up again.
func (s *service) ReconcileStaleRuns(ctx context.Context) ([]*RunResult, error) {
	runs, err := s.repo.ListStaleRuns(ctx, s.now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payout runs")
	}
	var (
		results = make([]*RunResult, 0, len(runs))
		errs    error
	)
	for i := range runs {
		result, err := s.reconcile(ctx, &runs[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("run %s: %w", runs[i].ID, err))
			continue
		}
		results = append(results, result)
	}
	return results, errs
}

func (s *service) reconcile(ctx context.Context, run *models.PayoutRun) (*RunResult, error) {
	allocations, err := s.repo.ListRunAllocations(ctx, run.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout run allocations")
	}
	claimed := make([]claim, 0, len(allocations))
	for _, alloc := range allocations {
		summary, err := escrow.Fold(alloc.CommissionRate, alloc.Entries)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, claim{allocationID: alloc.ID, orderID: alloc.OrderID, amount: summary.Outstanding})
	}

	transfer, err := s.gateway.FindTransfer(ctx, run.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up payout transfer")
	}
	runID := run.ID
	result := &RunResult{
		RunID:           &runID,
		SellerID:        run.SellerID,
		Total:           run.TotalAmount,
		AllocationCount: len(claimed),
	}
	if transfer == nil {
		result.Status = enums.PayoutRunStatusFailed
		result.FailureReason = errRunAbandoned.Error()
		if err := s.settle(ctx, run, claimed, nil, errRunAbandoned); err != nil {
			return nil, err
		}
		return s.finish(ctx, result), nil
	}
	if err := s.settle(ctx, run, claimed, transfer, nil); err != nil {
		return nil, err
	}
	result.Status = enums.PayoutRunStatusCompleted
	result.ProviderReference = transfer.Reference
	s.metrics.AddTransferred(run.Currency, run.TotalAmount)
	return s.finish(ctx, result), nil
}

// RunAllSellers fans out over every seller with payable escrow. A failing
// seller does not stop the others; infrastructure errors are joined.
func (s *service) RunAllSellers(ctx context.Context) ([]*RunResult, error) {
	sellers, err := s.repo.SellersWithPayable(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sellers with payable escrow")
	}

	var (
		mu      sync.Mutex
		results = make([]*RunResult, 0, len(sellers))
		errs    error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, sellerID := range sellers {
		g.Go(func() error {
			result, err := s.RunSellerPayouts(gctx, sellerID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("seller %s: %w", sellerID, err))
				return nil
			}
			results = append(results, result)
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(results, func(i, j int) bool {
		return results[i].SellerID.String() < results[j].SellerID.String()
	})
	return results, errs
}

func (s *service) RegisterAccount(ctx context.Context, sellerID uuid.UUID, stripeAccountID string) (*models.PayoutAccount, error) {
	stripeAccountID = strings.TrimSpace(stripeAccountID)
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if !strings.HasPrefix(stripeAccountID, "acct_") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe account id must start with acct_")
	}
	account := &models.PayoutAccount{SellerID: sellerID, StripeAccountID: stripeAccountID}
	if err := s.repo.UpsertAccount(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payout account")
	}
	return account, nil
}

func (s *service) ListRuns(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := s.repo.ListRuns(ctx, sellerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout runs")
	}
	return runs, nil
}

func (s *service) finish(ctx context.Context, result *RunResult) *RunResult {
	s.metrics.ObserveRun(string(result.Status))
	if s.logg == nil {
		return result
	}
	ctx = s.logg.WithSellerID(ctx, result.SellerID.String())
	fields := map[string]any{
		"status":           string(result.Status),
		"total":            result.Total.String(),
		"allocation_count": result.AllocationCount,
	}
	if result.RunID != nil {
		fields["run_id"] = result.RunID.String()
	}
	ctx = s.logg.WithFields(ctx, fields)
	if result.Status == enums.PayoutRunStatusFailed {
		s.logg.Warn(ctx, "seller payout failed: "+result.FailureReason)
		return result
	}
	s.logg.Info(ctx, "seller payout run finished")
	return result
}

func isPayable(status enums.PayoutStatus) bool {
	for _, candidate := range payableStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func groupByOrder(claims []claim) map[uuid.UUID][]claim {
	out := make(map[uuid.UUID][]claim)
	for _, c := range claims {
		out[c.orderID] = append(out[c.orderID], c)
	}
	return out
}

// sortedOrderIDs gives every run the same lock order.
func sortedOrderIDs(claims []claim) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0, len(claims))
	for _, c := range claims {
		if !seen[c.orderID] {
			seen[c.orderID] = true
			ids = append(ids, c.orderID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func errorRef(runID uuid.UUID, err error) string {
	return truncate(fmt.Sprintf("run %s: %s", runID, err.Error()), maxErrorRefLen)
}

// truncate cuts value to at most max bytes without splitting a rune.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	for max > 0 && !utf8.RuneStart(value[max]) {
		max--
	}
	return value[:max]
}
