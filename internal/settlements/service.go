// Package settlements closes monthly seller settlements and issues the
// commission invoices that go with them.
package settlements

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/internal/escrow"
	dbpkg "github.com/angelmondragon/packfinderz-escrow/pkg/db"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox"
	"github.com/angelmondragon/packfinderz-escrow/pkg/outbox/payloads"
)

// Line is one allocation counted in a settlement.
type Line struct {
	AllocationID    uuid.UUID       `json:"allocation_id"`
	SubOrderID      uuid.UUID       `json:"sub_order_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	EligibleAt      time.Time       `json:"eligible_at"`
	Held            decimal.Decimal `json:"held"`
	Commission      decimal.Decimal `json:"commission"`
	Payout          decimal.Decimal `json:"payout"`
	ReleasedToBuyer decimal.Decimal `json:"released_to_buyer"`
}

// Settlement totals one seller's payout-eligible escrow for a window.
type Settlement struct {
	SellerID        uuid.UUID       `json:"seller_id"`
	SellerName      string          `json:"seller_name"`
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	Currency        string          `json:"currency"`
	OrderCount      int             `json:"order_count"`
	Gross           decimal.Decimal `json:"gross"`
	Commission      decimal.Decimal `json:"commission"`
	Payout          decimal.Decimal `json:"payout"`
	AdjustmentCount int             `json:"adjustment_count"`
	AdjustmentTotal decimal.Decimal `json:"adjustment_total"`
	FirstEligibleAt time.Time       `json:"first_eligible_at"`
	Lines           []Line          `json:"lines"`
}

// Report is the settlement of every seller for one window.
type Report struct {
	Window      Window       `json:"window"`
	Settlements []Settlement `json:"settlements"`
}

// CloseResult reports a settlement close run. Settlements are exported only
// by the run that issued the period's invoices.
type CloseResult struct {
	Window   Window           `json:"window"`
	Invoices []models.Invoice `json:"invoices"`
	Issued   int              `json:"issued"`
	Exported int              `json:"exported"`
}

// Config carries the settlement calendar and invoice numbering.
type Config struct {
	CloseDay      int
	Location      *time.Location
	InvoiceSeries string
	TaxRate       decimal.Decimal
	Currency      string
	IssuerName    string
}

// Exporter ships closed settlements to the warehouse.
type Exporter interface {
	ExportSettlements(ctx context.Context, window Window, settlements []Settlement) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service computes settlements and manages invoices.
type Service interface {
	GetMonthlySettlements(ctx context.Context, year, month int) (*Report, error)
	GenerateMonthlyInvoices(ctx context.Context, year, month int) ([]models.Invoice, error)
	CloseLastPeriod(ctx context.Context) (*CloseResult, error)
	MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, paymentReference string) (*models.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	ListInvoices(ctx context.Context, year, month int) ([]models.Invoice, error)
	ListSellerInvoices(ctx context.Context, sellerID uuid.UUID) ([]models.Invoice, error)
	RenderInvoicePDF(ctx context.Context, invoiceID uuid.UUID) ([]byte, string, error)
}

// ServiceParams wires the settlement service. Exporter is optional.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Exporter Exporter
	Logger   *logger.Logger
	Config   Config
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	exporter Exporter
	logg     *logger.Logger
	cfg      Config
	now      func() time.Time
}

// NewService validates dependencies and applies config defaults.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	cfg := params.Config
	if cfg.CloseDay == 0 {
		cfg.CloseDay = 1
	}
	if cfg.CloseDay < 1 || cfg.CloseDay > 28 {
		return nil, fmt.Errorf("close day must be between 1 and 28")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if strings.TrimSpace(cfg.InvoiceSeries) == "" {
		cfg.InvoiceSeries = "PFC"
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("tax rate must not be negative")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.IssuerName == "" {
		cfg.IssuerName = "PackFinderz"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		exporter: params.Exporter,
		logg:     params.Logger,
		cfg:      cfg,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) GetMonthlySettlements(ctx context.Context, year, month int) (*Report, error) {
	window, err := PeriodFor(year, month, s.cfg.CloseDay, s.cfg.Location)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid settlement period")
	}
	return s.settle(ctx, s.repo, window)
}

func (s *service) settle(ctx context.Context, repo Repository, window Window) (*Report, error) {
	allocations, err := repo.ListEligibleInWindow(ctx, window.Start, window.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load eligible allocations")
	}
	subOrderIDs := make([]uuid.UUID, 0, len(allocations))
	for _, alloc := range allocations {
		subOrderIDs = append(subOrderIDs, alloc.SubOrderID)
	}
	names, err := repo.SellerNames(ctx, subOrderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller names")
	}

	bySeller := make(map[uuid.UUID]*Settlement)
	orders := make(map[uuid.UUID]map[uuid.UUID]bool)
	for _, alloc := range allocations {
		summary, err := escrow.FoldAsOf(alloc.CommissionRate, alloc.Entries, window.End)
		if err != nil {
			return nil, err
		}
		eligibleAt, ok := eligibleInWindow(alloc.Entries, window)
		if !ok {
			continue
		}
		st, ok := bySeller[alloc.SellerID]
		if !ok {
			st = &Settlement{
				SellerID:        alloc.SellerID,
				SellerName:      names[alloc.SubOrderID],
				Year:            window.Year,
				Month:           window.Month,
				PeriodStart:     window.Start,
				PeriodEnd:       window.End,
				Currency:        alloc.Currency,
				Gross:           decimal.Zero,
				Commission:      decimal.Zero,
				Payout:          decimal.Zero,
				AdjustmentTotal: decimal.Zero,
				FirstEligibleAt: eligibleAt,
			}
			bySeller[alloc.SellerID] = st
			orders[alloc.SellerID] = make(map[uuid.UUID]bool)
		}
		if eligibleAt.Before(st.FirstEligibleAt) {
			st.FirstEligibleAt = eligibleAt
		}
		orders[alloc.SellerID][alloc.OrderID] = true
		st.Gross = st.Gross.Add(summary.Held)
		st.Commission = st.Commission.Add(summary.Commission)
		st.Payout = st.Payout.Add(summary.SellerPayout)
		st.Lines = append(st.Lines, Line{
			AllocationID:    alloc.ID,
			SubOrderID:      alloc.SubOrderID,
			OrderID:         alloc.OrderID,
			EligibleAt:      eligibleAt,
			Held:            summary.Held,
			Commission:      summary.Commission,
			Payout:          summary.SellerPayout,
			ReleasedToBuyer: summary.ReleasedToBuyer,
		})
	}

	// Refunds booked after the seller's first eligibility in the window
	// changed figures the seller may already have seen.
	for _, alloc := range allocations {
		st, ok := bySeller[alloc.SellerID]
		if !ok {
			continue
		}
		for _, entry := range alloc.Entries {
			if entry.Type != enums.LedgerEntryReleaseToBuyer {
				continue
			}
			if !entry.CreatedAt.After(st.FirstEligibleAt) || !entry.CreatedAt.Before(window.End) {
				continue
			}
			st.AdjustmentCount++
			st.AdjustmentTotal = st.AdjustmentTotal.Add(entry.Amount)
		}
	}

	report := &Report{Window: window, Settlements: make([]Settlement, 0, len(bySeller))}
	for sellerID, st := range bySeller {
		st.OrderCount = len(orders[sellerID])
		report.Settlements = append(report.Settlements, *st)
	}
	sort.Slice(report.Settlements, func(i, j int) bool {
		return report.Settlements[i].SellerID.String() < report.Settlements[j].SellerID.String()
	})
	return report, nil
}

func eligibleInWindow(entries []models.EscrowLedgerEntry, window Window) (time.Time, bool) {
	for _, entry := range entries {
		if entry.Type == enums.LedgerEntryPayoutEligible {
			return entry.CreatedAt, window.Contains(entry.CreatedAt)
		}
	}
	return time.Time{}, false
}

// GenerateMonthlyInvoices issues one invoice per settled seller. Sellers that
// already hold an invoice for the period keep it.
func (s *service) GenerateMonthlyInvoices(ctx context.Context, year, month int) ([]models.Invoice, error) {
	window, err := PeriodFor(year, month, s.cfg.CloseDay, s.cfg.Location)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid settlement period")
	}
	if s.now().Before(window.End) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "settlement period has not closed yet")
	}
	invoices, _, _, err := s.issue(ctx, window)
	return invoices, err
}

func (s *service) issue(ctx context.Context, window Window) ([]models.Invoice, *Report, int, error) {
	var (
		invoices []models.Invoice
		report   *Report
		issued   int
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invoices = invoices[:0]
		issued = 0
		repo := s.repo.WithTx(tx)
		var err error
		report, err = s.settle(ctx, repo, window)
		if err != nil {
			return err
		}
		seq, err := repo.MaxSequence(ctx, window.Year, window.Month)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read invoice sequence")
		}
		for _, st := range report.Settlements {
			existing, err := repo.FindInvoiceForPeriod(ctx, st.SellerID, window.Year, window.Month)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
			}
			if existing != nil {
				invoices = append(invoices, *existing)
				continue
			}
			seq++
			invoice := s.buildInvoice(st, window, seq)
			if err := repo.CreateInvoice(ctx, &invoice); err != nil {
				if dbpkg.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "invoice numbering raced with another run")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventInvoiceIssued,
				AggregateType: enums.AggregateInvoice,
				AggregateID:   invoice.ID,
				Version:       1,
				OccurredAt:    invoice.IssuedAt,
				Data: payloads.InvoiceIssuedEvent{
					InvoiceID:     invoice.ID,
					InvoiceNumber: invoice.InvoiceNumber,
					SellerID:      invoice.SellerID,
					Year:          invoice.Year,
					Month:         invoice.Month,
					TotalAmount:   invoice.TotalAmount,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit invoice event")
			}
			invoices = append(invoices, invoice)
			issued++
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"year":          window.Year,
			"month":         window.Month,
			"invoice_count": len(invoices),
			"issued":        issued,
		})
		s.logg.Info(logCtx, "monthly invoices generated")
	}
	return invoices, report, issued, nil
}

func (s *service) buildInvoice(st Settlement, window Window, seq int) models.Invoice {
	net := escrow.Round(st.Payout)
	tax := escrow.Round(net.Mul(s.cfg.TaxRate))
	currency := st.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	return models.Invoice{
		ID:               uuid.New(),
		InvoiceNumber:    InvoiceNumber(s.cfg.InvoiceSeries, window.Year, window.Month, seq),
		SellerID:         st.SellerID,
		SellerName:       st.SellerName,
		Year:             window.Year,
		Month:            window.Month,
		Sequence:         seq,
		PeriodStart:      window.Start.UTC(),
		PeriodEnd:        window.End.UTC(),
		Currency:         currency,
		OrderCount:       st.OrderCount,
		GrossAmount:      st.Gross,
		CommissionAmount: st.Commission,
		PayoutAmount:     st.Payout,
		AdjustmentCount:  st.AdjustmentCount,
		AdjustmentAmount: st.AdjustmentTotal,
		NetAmount:        net,
		TaxRate:          s.cfg.TaxRate,
		TaxAmount:        tax,
		TotalAmount:      net.Add(tax),
		HasCorrections:   st.AdjustmentCount > 0,
		Status:           enums.InvoiceStatusPending,
		IssuedAt:         s.now(),
	}
}

// InvoiceNumber formats {series}-{yyyyMM}-{sequence}.
func InvoiceNumber(series string, year, month, seq int) string {
	return fmt.Sprintf("%s-%04d%02d-%04d", series, year, month, seq)
}

// CloseLastPeriod issues invoices for the most recently closed window and
// exports it to the warehouse when an exporter is configured.
func (s *service) CloseLastPeriod(ctx context.Context) (*CloseResult, error) {
	window, err := LastClosed(s.now(), s.cfg.CloseDay, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	invoices, report, issued, err := s.issue(ctx, window)
	if err != nil {
		return nil, err
	}
	result := &CloseResult{Window: window, Invoices: invoices, Issued: issued}
	if s.exporter == nil || issued == 0 {
		return result, nil
	}
	if err := s.exporter.ExportSettlements(ctx, window, report.Settlements); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "export settlements")
	}
	result.Exported = len(report.Settlements)
	return result, nil
}

// MarkInvoicePaid settles a pending invoice. Repeating the call with the
// same payment reference is a no-op.
func (s *service) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, paymentReference string) (*models.Invoice, error) {
	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	var invoice *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		invoice, err = repo.LockInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}
		if invoice.Status == enums.InvoiceStatusPaid {
			if invoice.PaymentReference != nil && *invoice.PaymentReference == paymentReference {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already paid")
		}
		paidAt := s.now()
		invoice.Status = enums.InvoiceStatusPaid
		invoice.PaymentReference = &paymentReference
		invoice.PaidAt = &paidAt
		if err := repo.UpdateInvoice(ctx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update invoice")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *service) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) ListInvoices(ctx context.Context, year, month int) ([]models.Invoice, error) {
	invoices, err := s.repo.ListInvoices(ctx, year, month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	return invoices, nil
}

func (s *service) ListSellerInvoices(ctx context.Context, sellerID uuid.UUID) ([]models.Invoice, error) {
	invoices, err := s.repo.ListSellerInvoices(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller invoices")
	}
	return invoices, nil
}

func (s *service) RenderInvoicePDF(ctx context.Context, invoiceID uuid.UUID) ([]byte, string, error) {
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, "", err
	}
	body, err := RenderInvoicePDF(invoice, s.cfg.IssuerName)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render invoice pdf")
	}
	return body, invoice.InvoiceNumber + ".pdf", nil
}
