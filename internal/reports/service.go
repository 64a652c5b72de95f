// Package reports produces CSV exports and sales series over the order and
// escrow tables.
package reports

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/internal/escrow"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/internal/settlements"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

const defaultRowCap = 5000

// SalesQuery selects a sales series. Zero From/To default to the trailing 30
// days.
type SalesQuery struct {
	Bucket    enums.TimeBucket
	From      time.Time
	To        time.Time
	ProductID *string
	Category  *string
}

// Config bounds exports and sets the time zone sales buckets use.
type Config struct {
	RowCap   int
	Location *time.Location
}

type settlementSource interface {
	GetMonthlySettlements(ctx context.Context, year, month int) (*settlements.Report, error)
}

// Service renders reports. Sellers see their own rows; admin sees all.
type Service interface {
	ExportSellerOrders(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, filters OrderFilters) (*Export, error)
	ExportAdminOrders(ctx context.Context, actor orders.Actor, filters OrderFilters) (*Export, error)
	ExportCommissionSummary(ctx context.Context, actor orders.Actor, filters OrderFilters) (*Export, error)
	ExportSettlement(ctx context.Context, actor orders.Actor, year, month int) (*Export, error)
	SalesSeries(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, query SalesQuery) (*Series, error)
}

// ServiceParams wires the reports service.
type ServiceParams struct {
	Repo        Repository
	Settlements settlementSource
	Config      Config
	Now         func() time.Time
}

type service struct {
	repo        Repository
	settlements settlementSource
	rowCap      int
	loc         *time.Location
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement source required")
	}
	rowCap := params.Config.RowCap
	if rowCap <= 0 {
		rowCap = defaultRowCap
	}
	loc := params.Config.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, settlements: params.Settlements, rowCap: rowCap, loc: loc, now: now}, nil
}

func (s *service) ExportSellerOrders(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, filters OrderFilters) (*Export, error) {
	if err := authorizeSeller(actor, sellerID); err != nil {
		return nil, err
	}
	filters.SellerID = &sellerID
	filters.BuyerID = nil
	return s.exportOrders(ctx, filters, false, "seller-orders-"+sellerID.String()+".csv")
}

func (s *service) ExportAdminOrders(ctx context.Context, actor orders.Actor, filters OrderFilters) (*Export, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	return s.exportOrders(ctx, filters, true, "orders.csv")
}

func (s *service) exportOrders(ctx context.Context, filters OrderFilters, admin bool, filename string) (*Export, error) {
	if err := validateRange(filters.DateFrom, filters.DateTo); err != nil {
		return nil, err
	}
	total, err := s.repo.CountOrders(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}
	rows, err := s.repo.ListOrders(ctx, filters, s.rowCap)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, orderRecord(row, admin))
	}
	header := sellerOrdersHeader
	if admin {
		header = adminOrdersHeader
	}
	export, err := render(filename, header, records, int(total))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render order export")
	}
	return export, nil
}

func (s *service) ExportCommissionSummary(ctx context.Context, actor orders.Actor, filters OrderFilters) (*Export, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateRange(filters.DateFrom, filters.DateTo); err != nil {
		return nil, err
	}
	rows, err := s.repo.CommissionSummary(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize commission")
	}
	total := len(rows)
	if len(rows) > s.rowCap {
		rows = rows[:s.rowCap]
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			row.SellerID.String(),
			row.SellerName,
			strconv.Itoa(row.OrderCount),
			money(escrow.Round(row.Gross)),
			money(escrow.Round(row.Commission)),
			money(escrow.Round(row.SellerPayout)),
			money(escrow.Round(row.ReleasedToBuyer)),
			money(escrow.Round(row.ReleasedToSeller)),
		})
	}
	export, err := render("commission-summary.csv", commissionHeader, records, total)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render commission summary")
	}
	return export, nil
}

func (s *service) ExportSettlement(ctx context.Context, actor orders.Actor, year, month int) (*Export, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	report, err := s.settlements.GetMonthlySettlements(ctx, year, month)
	if err != nil {
		return nil, err
	}
	list := report.Settlements
	total := len(list)
	if len(list) > s.rowCap {
		list = list[:s.rowCap]
	}
	period := fmt.Sprintf("%04d-%02d", year, month)
	records := make([][]string, 0, len(list))
	for _, st := range list {
		records = append(records, []string{
			st.SellerID.String(),
			st.SellerName,
			period,
			timestamp(st.PeriodStart),
			timestamp(st.PeriodEnd),
			st.Currency,
			strconv.Itoa(st.OrderCount),
			money(st.Gross),
			money(st.Commission),
			money(st.Payout),
			strconv.Itoa(st.AdjustmentCount),
			money(st.AdjustmentTotal),
		})
	}
	export, err := render("settlement-"+period+".csv", settlementHeader, records, total)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render settlement export")
	}
	return export, nil
}

func (s *service) SalesSeries(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, query SalesQuery) (*Series, error) {
	if err := authorizeSeller(actor, sellerID); err != nil {
		return nil, err
	}
	if query.Bucket == "" {
		query.Bucket = enums.TimeBucketDay
	}
	if !query.Bucket.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid bucket %q", query.Bucket))
	}
	if query.To.IsZero() {
		query.To = s.now()
	}
	if query.From.IsZero() {
		query.From = query.To.AddDate(0, 0, -30)
	}
	if !query.From.Before(query.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	if bucketCount(query.From, query.To, query.Bucket, s.loc) > maxBuckets {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "range too large for the requested bucket")
	}

	rows, err := s.repo.ListSalesRows(ctx, SalesFilters{
		SellerID:  sellerID,
		From:      query.From,
		To:        query.To,
		ProductID: query.ProductID,
		Category:  query.Category,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	points := BuildSeries(rows, query.From, query.To, query.Bucket, s.loc)
	for i := range points {
		points[i].Revenue = escrow.Round(points[i].Revenue)
	}
	return &Series{
		SellerID: sellerID,
		Bucket:   query.Bucket,
		From:     query.From,
		To:       query.To,
		Points:   points,
	}, nil
}

func authorizeSeller(actor orders.Actor, sellerID uuid.UUID) error {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return nil
	case enums.ActorRoleSeller:
		if actor.ID == sellerID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "seller reports are limited to the owning seller")
}

func authorizeAdmin(actor orders.Actor) error {
	if actor.Role == enums.ActorRoleAdmin || actor.Role == enums.ActorRoleSystem {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
}

func validateRange(from, to *time.Time) error {
	if from != nil && to != nil && !from.Before(*to) {
		return pkgerrors.New(pkgerrors.CodeValidation, "dateFrom must be before dateTo")
	}
	return nil
}

