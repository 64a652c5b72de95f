package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-escrow/internal/payouts"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

type payoutRunner interface {
	ReconcileStaleRuns(ctx context.Context) ([]*payouts.RunResult, error)
	RunAllSellers(ctx context.Context) ([]*payouts.RunResult, error)
}

// SellerPayoutsJobParams configure the payout sweep.
type SellerPayoutsJobParams struct {
	Logger  *logger.Logger
	Payouts payoutRunner
}

// NewSellerPayoutsJob builds the job that pays every seller holding eligible
// escrow. Runs left processing by an earlier sweep are reconciled first so
// their allocations can be paid again.
func NewSellerPayoutsJob(params SellerPayoutsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &sellerPayoutsJob{logg: params.Logger, payouts: params.Payouts, now: time.Now}, nil
}

type sellerPayoutsJob struct {
	logg    *logger.Logger
	payouts payoutRunner
	now     func() time.Time
}

func (j *sellerPayoutsJob) Name() string { return "seller-payouts" }

func (j *sellerPayoutsJob) Run(ctx context.Context) error {
	var errs []error
	reconciled, err := j.payouts.ReconcileStaleRuns(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if len(reconciled) > 0 {
		j.logReconciled(ctx, reconciled)
	}

	results, runErr := j.payouts.RunAllSellers(ctx)
	var (
		paid  = decimal.Zero
		count = map[enums.PayoutRunStatus]int{}
	)
	if runErr != nil {
		errs = append(errs, runErr)
	}
	for _, result := range results {
		count[result.Status]++
		if result.Status == enums.PayoutRunStatusCompleted {
			paid = paid.Add(result.Total)
		}
		if !result.Succeeded() {
			errs = append(errs, fmt.Errorf("seller %s payout failed: %s", result.SellerID, result.FailureReason))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sellers":         len(results),
		"completed":       count[enums.PayoutRunStatusCompleted],
		"below_threshold": count[enums.PayoutRunStatusBelowThreshold],
		"failed":          count[enums.PayoutRunStatusFailed],
		"paid_total":      paid.StringFixed(2),
		"ran_at":          j.now().UTC(),
	})
	j.logg.Info(logCtx, "seller payout sweep complete")
	return multierr.Combine(errs...)
}

func (j *sellerPayoutsJob) logReconciled(ctx context.Context, results []*payouts.RunResult) {
	settled, failed := 0, 0
	for _, result := range results {
		if result.Succeeded() {
			settled++
			continue
		}
		failed++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_runs": len(results),
		"settled":    settled,
		"failed":     failed,
	})
	j.logg.Warn(logCtx, "reconciled stale payout runs")
}
