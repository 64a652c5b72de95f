package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-escrow/internal/settlements"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

type periodCloser interface {
	CloseLastPeriod(ctx context.Context) (*settlements.CloseResult, error)
}

// SettlementCloseJobParams configure the monthly close.
type SettlementCloseJobParams struct {
	Logger      *logger.Logger
	Settlements periodCloser
	CloseDay    int
	Location    *time.Location
}

// NewSettlementCloseJob builds the job that issues invoices for the period
// that ended on the close day.
func NewSettlementCloseJob(params SettlementCloseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.CloseDay < 1 || params.CloseDay > 28 {
		return nil, fmt.Errorf("close day must be between 1 and 28")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &settlementCloseJob{
		logg:        params.Logger,
		settlements: params.Settlements,
		closeDay:    params.CloseDay,
		loc:         loc,
		now:         time.Now,
	}, nil
}

type settlementCloseJob struct {
	logg        *logger.Logger
	settlements periodCloser
	closeDay    int
	loc         *time.Location
	now         func() time.Time
}

func (j *settlementCloseJob) Name() string { return "settlement-close" }

func (j *settlementCloseJob) Run(ctx context.Context) error {
	now := j.now()
	if !settlements.IsCloseDay(now, j.closeDay, j.loc) {
		j.logg.Info(j.logg.WithField(ctx, "close_day", j.closeDay), "not a close day; skipping settlement close")
		return nil
	}
	result, err := j.settlements.CloseLastPeriod(ctx)
	if err != nil {
		return fmt.Errorf("close settlement period: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"period":   fmt.Sprintf("%04d-%02d", result.Window.Year, result.Window.Month),
		"invoices": len(result.Invoices),
		"exported": result.Exported,
	})
	j.logg.Info(logCtx, "settlement period closed")
	return nil
}
