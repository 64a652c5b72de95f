package cases

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/api/middleware"
	internalcases "github.com/angelmondragon/packfinderz-escrow/internal/cases"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

type stubService struct {
	internalcases.Service

	created       *internalcases.CreateInput
	resolvedBy    string
	resolveInput  internalcases.ResolveInput
	escalateNote  *string
	metricsSeller uuid.UUID
	metricsFrom   time.Time
	metricsTo     time.Time
}

func (s *stubService) CreateReturnRequest(ctx context.Context, input internalcases.CreateInput) (*models.ReturnCase, error) {
	s.created = &input
	return &models.ReturnCase{
		ID:         uuid.New(),
		CaseNumber: "RC-0001",
		SubOrderID: input.SubOrderID,
		BuyerID:    input.Actor.ID,
		Type:       input.Type,
		Status:     enums.ReturnCaseStatusPendingSellerReview,
		Reason:     input.Reason,
	}, nil
}

func (s *stubService) ResolveReturnCaseForSeller(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input internalcases.ResolveInput) (*models.ReturnCase, error) {
	s.resolvedBy = "seller"
	s.resolveInput = input
	return resolvedCase(caseID, input), nil
}

func (s *stubService) ResolveReturnCaseForAdmin(ctx context.Context, caseID uuid.UUID, actor orders.Actor, input internalcases.ResolveInput) (*models.ReturnCase, error) {
	s.resolvedBy = "admin"
	s.resolveInput = input
	return resolvedCase(caseID, input), nil
}

func (s *stubService) EscalateReturnCaseForAdmin(ctx context.Context, caseID uuid.UUID, actor orders.Actor, note *string) (*models.ReturnCase, error) {
	s.escalateNote = note
	return &models.ReturnCase{ID: caseID, Status: enums.ReturnCaseStatusUnderAdminReview}, nil
}

func (s *stubService) SellerSLAMetrics(ctx context.Context, sellerID uuid.UUID, actor orders.Actor, from, to time.Time) (*internalcases.SellerMetrics, error) {
	s.metricsSeller = sellerID
	s.metricsFrom = from
	s.metricsTo = to
	return &internalcases.SellerMetrics{SellerID: sellerID, From: from, To: to}, nil
}

func resolvedCase(caseID uuid.UUID, input internalcases.ResolveInput) *models.ReturnCase {
	rc := &models.ReturnCase{ID: caseID, Status: enums.ReturnCaseStatusCompleted, Outcome: &input.Outcome}
	if input.RefundAmount != nil {
		rc.RefundAmount = decimal.NewNullDecimal(*input.RefundAmount)
	}
	return rc
}

func request(method, body string, actorID uuid.UUID, role enums.ActorRole, params map[string]string) *http.Request {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, "/", reader)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithActor(ctx, actorID.String(), string(role))
	return req.WithContext(ctx)
}

func TestCreate(t *testing.T) {
	svc := &stubService{}
	buyerID := uuid.New()
	subID := uuid.New()
	itemID := uuid.New()
	body := `{"sub_order_id":"` + subID.String() + `","type":"return","reason":"damaged","items":[{"order_item_id":"` + itemID.String() + `","quantity":1}]}`

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, request(http.MethodPost, body, buyerID, enums.ActorRoleBuyer, nil))

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.NotNil(t, svc.created)
	assert.Equal(t, subID, svc.created.SubOrderID)
	assert.Equal(t, enums.ReturnCaseTypeReturn, svc.created.Type)
	assert.Equal(t, buyerID, svc.created.Actor.ID)
	require.Len(t, svc.created.Items, 1)
	assert.Equal(t, itemID, svc.created.Items[0].OrderItemID)

	var envelope struct {
		Data caseView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "RC-0001", envelope.Data.CaseNumber)
	assert.Equal(t, enums.ReturnCaseStatusPendingSellerReview, envelope.Data.Status)
}

func TestCreate_RejectsUnknownType(t *testing.T) {
	svc := &stubService{}
	body := `{"sub_order_id":"` + uuid.NewString() + `","type":"exchange","reason":"x"}`

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, request(http.MethodPost, body, uuid.New(), enums.ActorRoleBuyer, nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.created)
}

func TestResolve_DispatchesByRoute(t *testing.T) {
	caseID := uuid.New()
	body := `{"outcome":"partial_refund","refund_amount":"12.50","note":"half"}`

	svc := &stubService{}
	resp := httptest.NewRecorder()
	SellerResolve(svc, nil).ServeHTTP(resp, request(http.MethodPost, body, uuid.New(), enums.ActorRoleSeller, map[string]string{"caseId": caseID.String()}))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "seller", svc.resolvedBy)
	assert.Equal(t, enums.ReturnCaseOutcomePartialRefund, svc.resolveInput.Outcome)
	require.NotNil(t, svc.resolveInput.RefundAmount)
	assert.True(t, svc.resolveInput.RefundAmount.Equal(decimal.RequireFromString("12.50")))

	var envelope struct {
		Data caseView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotNil(t, envelope.Data.RefundAmount)
	assert.Equal(t, "12.5", envelope.Data.RefundAmount.String())

	svc = &stubService{}
	resp = httptest.NewRecorder()
	AdminResolve(svc, nil).ServeHTTP(resp, request(http.MethodPost, `{"outcome":"no_refund"}`, uuid.New(), enums.ActorRoleAdmin, map[string]string{"caseId": caseID.String()}))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "admin", svc.resolvedBy)
	assert.Nil(t, svc.resolveInput.RefundAmount)
}

func TestEscalate_AllowsEmptyBody(t *testing.T) {
	svc := &stubService{}
	resp := httptest.NewRecorder()
	Escalate(svc, nil).ServeHTTP(resp, request(http.MethodPost, "", uuid.New(), enums.ActorRoleBuyer, map[string]string{"caseId": uuid.NewString()}))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Nil(t, svc.escalateNote)
}

func TestSellerMetrics(t *testing.T) {
	t.Run("seller gets own metrics over default window", func(t *testing.T) {
		svc := &stubService{}
		sellerID := uuid.New()
		resp := httptest.NewRecorder()
		SellerMetrics(svc, nil).ServeHTTP(resp, request(http.MethodGet, "", sellerID, enums.ActorRoleSeller, nil))

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, sellerID, svc.metricsSeller)
		assert.Equal(t, defaultMetricsWindow, svc.metricsTo.Sub(svc.metricsFrom))
	})

	t.Run("admin names the seller in the path", func(t *testing.T) {
		svc := &stubService{}
		sellerID := uuid.New()
		resp := httptest.NewRecorder()
		SellerMetrics(svc, nil).ServeHTTP(resp, request(http.MethodGet, "", uuid.New(), enums.ActorRoleAdmin, map[string]string{"sellerId": sellerID.String()}))

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, sellerID, svc.metricsSeller)
	})
}

func TestMetricsWindow_RejectsInvertedRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-02-01", nil)
	_, _, err := metricsWindow(req, time.Now())
	assert.Error(t, err)
}
