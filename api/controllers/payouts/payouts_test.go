package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-escrow/api/middleware"
	internalpayouts "github.com/angelmondragon/packfinderz-escrow/internal/payouts"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

type stubService struct {
	internalpayouts.Service

	runSeller  uuid.UUID
	account    string
	listSeller uuid.UUID
	listLimit  int
}

func (s *stubService) RunSellerPayouts(ctx context.Context, sellerID uuid.UUID) (*internalpayouts.RunResult, error) {
	s.runSeller = sellerID
	return &internalpayouts.RunResult{SellerID: sellerID, Status: enums.PayoutRunStatusCompleted, Total: decimal.RequireFromString("90")}, nil
}

func (s *stubService) RegisterAccount(ctx context.Context, sellerID uuid.UUID, stripeAccountID string) (*models.PayoutAccount, error) {
	s.account = stripeAccountID
	return &models.PayoutAccount{SellerID: sellerID, StripeAccountID: stripeAccountID}, nil
}

func (s *stubService) ListRuns(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutRun, error) {
	s.listSeller = sellerID
	s.listLimit = limit
	return []models.PayoutRun{{ID: uuid.New(), SellerID: sellerID, Status: enums.PayoutRunStatusCompleted}}, nil
}

func request(method, url, body string, actorID uuid.UUID, role enums.ActorRole, sellerID *uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader([]byte(body)))
	rctx := chi.NewRouteContext()
	if sellerID != nil {
		rctx.URLParams.Add("sellerId", sellerID.String())
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(middleware.WithActor(ctx, actorID.String(), string(role)))
}

func TestRunSeller(t *testing.T) {
	svc := &stubService{}
	sellerID := uuid.New()
	resp := httptest.NewRecorder()
	RunSeller(svc, nil).ServeHTTP(resp, request(http.MethodPost, "/", "", uuid.New(), enums.ActorRoleAdmin, &sellerID))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, sellerID, svc.runSeller)

	var envelope struct {
		Data internalpayouts.RunResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, enums.PayoutRunStatusCompleted, envelope.Data.Status)
	assert.True(t, envelope.Data.Total.Equal(decimal.NewFromInt(90)))
}

func TestRegisterAccount_ValidatesAccountID(t *testing.T) {
	sellerID := uuid.New()

	svc := &stubService{}
	resp := httptest.NewRecorder()
	RegisterAccount(svc, nil).ServeHTTP(resp, request(http.MethodPut, "/", `{"stripe_account_id":"cus_123"}`, uuid.New(), enums.ActorRoleAdmin, &sellerID))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.account)

	resp = httptest.NewRecorder()
	RegisterAccount(svc, nil).ServeHTTP(resp, request(http.MethodPut, "/", `{"stripe_account_id":"acct_123"}`, uuid.New(), enums.ActorRoleAdmin, &sellerID))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "acct_123", svc.account)
}

func TestRuns_SellerIsPinned(t *testing.T) {
	svc := &stubService{}
	sellerID := uuid.New()
	other := uuid.New()
	resp := httptest.NewRecorder()
	Runs(svc, nil).ServeHTTP(resp, request(http.MethodGet, "/?limit=5", "", sellerID, enums.ActorRoleSeller, &other))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, sellerID, svc.listSeller)
	assert.Equal(t, 5, svc.listLimit)
}

func TestRuns_RejectsBuyer(t *testing.T) {
	resp := httptest.NewRecorder()
	Runs(&stubService{}, nil).ServeHTTP(resp, request(http.MethodGet, "/", "", uuid.New(), enums.ActorRoleBuyer, nil))
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
