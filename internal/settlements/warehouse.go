package settlements

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgbigquery "github.com/angelmondragon/packfinderz-escrow/pkg/bigquery"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy controls how many times warehouse inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// SettlementRow is one seller settlement in the warehouse table.
type SettlementRow struct {
	SettlementID    string    `bigquery:"settlement_id"`
	SellerID        string    `bigquery:"seller_id"`
	SellerName      string    `bigquery:"seller_name"`
	Year            int       `bigquery:"year"`
	Month           int       `bigquery:"month"`
	PeriodStart     time.Time `bigquery:"period_start"`
	PeriodEnd       time.Time `bigquery:"period_end"`
	Currency        string    `bigquery:"currency"`
	OrderCount      int       `bigquery:"order_count"`
	Gross           *big.Rat  `bigquery:"gross"`
	Commission      *big.Rat  `bigquery:"commission"`
	Payout          *big.Rat  `bigquery:"payout"`
	AdjustmentCount int       `bigquery:"adjustment_count"`
	AdjustmentTotal *big.Rat  `bigquery:"adjustment_total"`
	ExportedAt      time.Time `bigquery:"exported_at"`
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// WarehouseExporter streams settlements into BigQuery with retries.
type WarehouseExporter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
	now    func() time.Time
}

// NewWarehouseExporter builds an exporter backed by a shared client.
func NewWarehouseExporter(client *pkgbigquery.Client, table string, retry RetryPolicy) (*WarehouseExporter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("settlements table is required")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}
	return &WarehouseExporter{client: client, table: table, retry: retry, now: time.Now}, nil
}

func (w *WarehouseExporter) ExportSettlements(ctx context.Context, window Window, settlements []Settlement) error {
	if len(settlements) == 0 {
		return nil
	}
	exportedAt := w.now().UTC()
	rows := make([]any, 0, len(settlements))
	for _, st := range settlements {
		id := fmt.Sprintf("%s-%04d%02d", st.SellerID, window.Year, window.Month)
		row := &SettlementRow{
			SettlementID:    id,
			SellerID:        st.SellerID.String(),
			SellerName:      st.SellerName,
			Year:            window.Year,
			Month:           window.Month,
			PeriodStart:     window.Start.UTC(),
			PeriodEnd:       window.End.UTC(),
			Currency:        st.Currency,
			OrderCount:      st.OrderCount,
			Gross:           numeric(st.Gross),
			Commission:      numeric(st.Commission),
			Payout:          numeric(st.Payout),
			AdjustmentCount: st.AdjustmentCount,
			AdjustmentTotal: numeric(st.AdjustmentTotal),
			ExportedAt:      exportedAt,
		}
		// The insert id lets BigQuery drop duplicates when a close is retried.
		rows = append(rows, &cbigquery.StructSaver{Struct: row, InsertID: id})
	}
	return w.insertWithRetry(ctx, rows)
}

func numeric(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

func (w *WarehouseExporter) insertWithRetry(ctx context.Context, rows []any) error {
	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	// Both multi-error types implement error on the value, so As needs value targets.
	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
				return true
			}
		}
	}
	return false
}
