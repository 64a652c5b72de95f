package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/transfer"

	pkgstripe "github.com/angelmondragon/packfinderz-escrow/pkg/stripe"
)

// TransferRequest moves a seller payout to the seller's connected account.
type TransferRequest struct {
	RunID       uuid.UUID
	SellerID    uuid.UUID
	Destination string
	Amount      decimal.Decimal
	Currency    string
}

// TransferResult carries the provider reference of a completed transfer.
type TransferResult struct {
	Reference string
}

// TransferGateway is the bank side of a payout run. FindTransfer reports the
// transfer made for a run, or nil when the run never paid.
type TransferGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	FindTransfer(ctx context.Context, runID uuid.UUID) (*TransferResult, error)
}

// StripeGateway pays sellers with Stripe Connect transfers. The run id is the
// idempotency key, so retrying a run never pays twice.
type StripeGateway struct {
	create func(params *stripe.TransferParams) (*stripe.Transfer, error)
	list   func(params *stripe.TransferListParams) *transfer.Iter
}

// NewStripeGateway requires an initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil || client.API() == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{create: transfer.New, list: transfer.List}, nil
}

func (g *StripeGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return nil, errors.New("destination account required")
	}
	cents := req.Amount.Shift(2).Round(0)
	if !cents.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive, got %s", req.Amount)
	}
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(cents.IntPart()),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(transferGroup(req.RunID)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(transferGroup(req.RunID))
	params.AddMetadata("seller_id", req.SellerID.String())
	params.AddMetadata("run_id", req.RunID.String())

	tr, err := g.create(params)
	if err != nil {
		return nil, err
	}
	return &TransferResult{Reference: tr.ID}, nil
}

func (g *StripeGateway) FindTransfer(ctx context.Context, runID uuid.UUID) (*TransferResult, error) {
	params := &stripe.TransferListParams{TransferGroup: stripe.String(transferGroup(runID))}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	it := g.list(params)
	if it.Next() {
		return &TransferResult{Reference: it.Transfer().ID}, nil
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

func transferGroup(runID uuid.UUID) string {
	return "payout-run-" + runID.String()
}

// MockGateway records transfers in memory and can be told to fail. It backs
// local environments without Stripe and the payout tests.
type MockGateway struct {
	mu        sync.Mutex
	Fail      error
	Transfers []TransferRequest
}

func (g *MockGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail != nil {
		return nil, g.Fail
	}
	g.Transfers = append(g.Transfers, req)
	return &TransferResult{Reference: mockReference(len(g.Transfers))}, nil
}

func (g *MockGateway) FindTransfer(ctx context.Context, runID uuid.UUID) (*TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, req := range g.Transfers {
		if req.RunID == runID {
			return &TransferResult{Reference: mockReference(i + 1)}, nil
		}
	}
	return nil, nil
}

func mockReference(n int) string {
	return fmt.Sprintf("tr_mock_%d", n)
}

// SetFailure switches the mock between failing and succeeding.
func (g *MockGateway) SetFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Fail = err
}
