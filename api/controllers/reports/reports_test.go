package reports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/api/middleware"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	internalreports "github.com/angelmondragon/packfinderz-escrow/internal/reports"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

type stubService struct {
	internalreports.Service

	sellerFilters internalreports.OrderFilters
	sellerID      uuid.UUID
	period        [2]int
	salesQuery    internalreports.SalesQuery
}

func (s *stubService) ExportSellerOrders(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, filters internalreports.OrderFilters) (*internalreports.Export, error) {
	s.sellerID = sellerID
	s.sellerFilters = filters
	return &internalreports.Export{
		Filename:  "seller-orders.csv",
		Rows:      2,
		Total:     5,
		Truncated: true,
		Data:      []byte("sub_order_number,status\nS-1,paid\nS-2,shipped\n"),
	}, nil
}

func (s *stubService) ExportSettlement(ctx context.Context, actor orders.Actor, year, month int) (*internalreports.Export, error) {
	if actor.Role != enums.ActorRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin only")
	}
	s.period = [2]int{year, month}
	return &internalreports.Export{Filename: "settlement-2026-01.csv", Data: []byte("seller_id\n")}, nil
}

func (s *stubService) SalesSeries(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, query internalreports.SalesQuery) (*internalreports.Series, error) {
	s.sellerID = sellerID
	s.salesQuery = query
	return &internalreports.Series{SellerID: sellerID, Bucket: query.Bucket}, nil
}

func request(url string, actorID uuid.UUID, role enums.ActorRole, params map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(middleware.WithActor(ctx, actorID.String(), string(role)))
}

func TestSellerOrdersCSV_WritesAttachmentAndHeaders(t *testing.T) {
	svc := &stubService{}
	sellerID := uuid.New()
	resp := httptest.NewRecorder()
	SellerOrdersCSV(svc, nil).ServeHTTP(resp, request("/?status=shipped&from=2026-01-01", sellerID, enums.ActorRoleSeller, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, sellerID, svc.sellerID)
	require.NotNil(t, svc.sellerFilters.Status)
	assert.Equal(t, enums.OrderStatusShipped, *svc.sellerFilters.Status)
	assert.NotNil(t, svc.sellerFilters.DateFrom)

	assert.Equal(t, csvContentType, resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "seller-orders.csv")
	assert.Equal(t, "true", resp.Header().Get(HeaderExportTruncated))
	assert.Equal(t, "5", resp.Header().Get(HeaderExportTotal))
	assert.Contains(t, resp.Body.String(), "S-2,shipped")
}

func TestSettlementCSV_RequiresPeriod(t *testing.T) {
	svc := &stubService{}
	resp := httptest.NewRecorder()
	SettlementCSV(svc, nil).ServeHTTP(resp, request("/?year=2026", uuid.New(), enums.ActorRoleAdmin, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	SettlementCSV(svc, nil).ServeHTTP(resp, request("/?year=2026&month=13", uuid.New(), enums.ActorRoleAdmin, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	SettlementCSV(svc, nil).ServeHTTP(resp, request("/?year=2026&month=1", uuid.New(), enums.ActorRoleAdmin, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, [2]int{2026, 1}, svc.period)
}

func TestSettlementCSV_ForwardsServiceErrors(t *testing.T) {
	resp := httptest.NewRecorder()
	SettlementCSV(&stubService{}, nil).ServeHTTP(resp, request("/?year=2026&month=1", uuid.New(), enums.ActorRoleSeller, nil))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Empty(t, resp.Header().Get(HeaderExportTotal))
}

func TestSales_AdminUsesPathSeller(t *testing.T) {
	svc := &stubService{}
	sellerID := uuid.New()
	resp := httptest.NewRecorder()
	url := "/?bucket=week&from=2026-01-01&to=2026-02-01&product_id=p-1"
	Sales(svc, nil).ServeHTTP(resp, request(url, uuid.New(), enums.ActorRoleAdmin, map[string]string{"sellerId": sellerID.String()}))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, sellerID, svc.sellerID)
	assert.Equal(t, enums.TimeBucketWeek, svc.salesQuery.Bucket)
	require.NotNil(t, svc.salesQuery.ProductID)
	assert.Equal(t, "p-1", *svc.salesQuery.ProductID)
	assert.Nil(t, svc.salesQuery.Category)
}

func TestSales_RejectsUnknownBucket(t *testing.T) {
	resp := httptest.NewRecorder()
	Sales(&stubService{}, nil).ServeHTTP(resp, request("/?bucket=hour", uuid.New(), enums.ActorRoleSeller, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
