package reports_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders/orderstest"
	"github.com/angelmondragon/packfinderz-escrow/internal/reports"
	"github.com/angelmondragon/packfinderz-escrow/internal/settlements"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/dbtest"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

var (
	admin   = orders.Actor{ID: uuid.New(), Role: enums.ActorRoleAdmin}
	sellerA = orders.Actor{ID: orderstest.SellerA, Role: enums.ActorRoleSeller}
	sellerB = orders.Actor{ID: orderstest.SellerB, Role: enums.ActorRoleSeller}
)

func newService(t *testing.T, rowCap int) (*orderstest.Harness, reports.Service) {
	t.Helper()
	client, conn := dbtest.Client(t)
	h := orderstest.New(t, client)
	settle, err := settlements.NewService(settlements.ServiceParams{
		Repo:   settlements.NewRepository(conn),
		Tx:     client,
		Outbox: h.Outbox,
		Config: settlements.Config{CloseDay: 1, Location: time.UTC, InvoiceSeries: "PFC"},
		Now:    h.Clock.Now,
	})
	require.NoError(t, err)
	svc, err := reports.NewService(reports.ServiceParams{
		Repo:        reports.NewRepository(conn),
		Settlements: settle,
		Config:      reports.Config{RowCap: rowCap, Location: time.UTC},
		Now:         h.Clock.Now,
	})
	require.NoError(t, err)
	return h, svc
}

func parse(t *testing.T, export *reports.Export) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(export.Data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportSellerOrdersScopesToSeller(t *testing.T) {
	h, svc := newService(t, 100)
	h.PlaceOrder(t, "pi_report_seller")

	export, err := svc.ExportSellerOrders(context.Background(), orderstest.SellerA, sellerA, reports.OrderFilters{})
	require.NoError(t, err)
	records := parse(t, export)
	require.Len(t, records, 2)
	assert.Equal(t, "sub_order_number", records[0][0])
	assert.Equal(t, "30.00", records[1][9])
	assert.Equal(t, "3.00", records[1][10])
	assert.Equal(t, "27.00", records[1][11])
	assert.False(t, export.Truncated)
	assert.Equal(t, 1, export.Total)

	_, err = svc.ExportSellerOrders(context.Background(), orderstest.SellerA, sellerB, reports.OrderFilters{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestExportAdminOrdersTruncatesAtRowCap(t *testing.T) {
	h, svc := newService(t, 1)
	h.PlaceOrder(t, "pi_report_cap")

	export, err := svc.ExportAdminOrders(context.Background(), admin, reports.OrderFilters{})
	require.NoError(t, err)
	assert.True(t, export.Truncated)
	assert.Equal(t, 1, export.Rows)
	assert.Equal(t, 2, export.Total)
	records := parse(t, export)
	assert.Len(t, records, 2)
	assert.Equal(t, "seller_id", records[0][3])

	_, err = svc.ExportAdminOrders(context.Background(), sellerA, reports.OrderFilters{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestExportCommissionSummary(t *testing.T) {
	h, svc := newService(t, 100)
	h.PlaceOrder(t, "pi_report_commission_1")
	h.PlaceOrder(t, "pi_report_commission_2")

	export, err := svc.ExportCommissionSummary(context.Background(), admin, reports.OrderFilters{})
	require.NoError(t, err)
	records := parse(t, export)
	require.Len(t, records, 3)
	row := records[1]
	assert.Equal(t, orderstest.SellerA.String(), row[0])
	assert.Equal(t, "2", row[2])
	assert.Equal(t, "60.00", row[3])
	assert.Equal(t, "6.00", row[4])
	assert.Equal(t, "54.00", row[5])
}

func TestExportSettlementValidatesMonth(t *testing.T) {
	_, svc := newService(t, 100)
	_, err := svc.ExportSettlement(context.Background(), admin, 2026, 13)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	export, err := svc.ExportSettlement(context.Background(), admin, 2026, 3)
	require.NoError(t, err)
	assert.Equal(t, "settlement-2026-03.csv", export.Filename)
	assert.Equal(t, 0, export.Total)
	assert.Len(t, parse(t, export), 1)
}

func TestSalesSeriesFilters(t *testing.T) {
	h, svc := newService(t, 100)
	h.PlaceOrder(t, "pi_report_sales")
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	series, err := svc.SalesSeries(context.Background(), orderstest.SellerA, sellerA, reports.SalesQuery{Bucket: enums.TimeBucketDay, From: from, To: to})
	require.NoError(t, err)
	require.Len(t, series.Points, 7)
	day := series.Points[1]
	assert.Equal(t, "2026-03-02", day.Period)
	assert.Equal(t, 1, day.Orders)
	assert.Equal(t, 3, day.Units)
	assert.True(t, day.Revenue.Equal(decimal.NewFromInt(28)))

	widget := "sku-widget"
	series, err = svc.SalesSeries(context.Background(), orderstest.SellerA, sellerA, reports.SalesQuery{Bucket: enums.TimeBucketWeek, From: from, To: to, ProductID: &widget})
	require.NoError(t, err)
	total := 0
	for _, p := range series.Points {
		total += p.Units
	}
	assert.Equal(t, 2, total)

	category := "no-such-category"
	series, err = svc.SalesSeries(context.Background(), orderstest.SellerA, sellerA, reports.SalesQuery{Bucket: enums.TimeBucketMonth, From: from, To: to, Category: &category})
	require.NoError(t, err)
	require.Len(t, series.Points, 1)
	assert.Zero(t, series.Points[0].Units)

	_, err = svc.SalesSeries(context.Background(), orderstest.SellerA, sellerA, reports.SalesQuery{Bucket: "hour"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
