package payouts

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/api/controllers/actorcontext"
	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	internalpayouts "github.com/angelmondragon/packfinderz-escrow/internal/payouts"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pagination"
)

type registerAccountRequest struct {
	StripeAccountID string `json:"stripe_account_id" validate:"required,startswith=acct_"`
}

type runView struct {
	ID                uuid.UUID             `json:"id"`
	SellerID          uuid.UUID             `json:"seller_id"`
	Status            enums.PayoutRunStatus `json:"status"`
	Currency          string                `json:"currency"`
	TotalAmount       decimal.Decimal       `json:"total_amount"`
	AllocationCount   int                   `json:"allocation_count"`
	ProviderReference *string               `json:"provider_reference,omitempty"`
	FailureReason     *string               `json:"failure_reason,omitempty"`
	StartedAt         time.Time             `json:"started_at"`
	FinishedAt        *time.Time            `json:"finished_at,omitempty"`
}

type accountView struct {
	SellerID        uuid.UUID `json:"seller_id"`
	StripeAccountID string    `json:"stripe_account_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RunAll pays out every seller with eligible allocations.
func RunAll(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		results, err := svc.RunAllSellers(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"runs": results})
	}
}

// RunSeller pays out one seller. A seller below the minimum gets a skipped
// result rather than an error.
func RunSeller(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		sellerID, err := validators.ParsePathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RunSellerPayouts(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func RegisterAccount(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		sellerID, err := validators.ParsePathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload registerAccountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.RegisterAccount(r.Context(), sellerID, strings.TrimSpace(payload.StripeAccountID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, accountView{
			SellerID:        account.SellerID,
			StripeAccountID: account.StripeAccountID,
			UpdatedAt:       account.UpdatedAt,
		})
	}
}

// Runs lists payout runs newest first. Sellers only see their own; admins
// name the seller in the path.
func Runs(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sellerID := actor.ID
		switch actor.Role {
		case enums.ActorRoleAdmin:
			if sellerID, err = validators.ParsePathUUID(r, "sellerId"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		case enums.ActorRoleSeller:
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "payout runs are for sellers and admins"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		runs, err := svc.ListRuns(r.Context(), sellerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"runs": newRunViews(runs)})
	}
}

func newRunViews(runs []models.PayoutRun) []runView {
	out := make([]runView, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView{
			ID:                run.ID,
			SellerID:          run.SellerID,
			Status:            run.Status,
			Currency:          run.Currency,
			TotalAmount:       run.TotalAmount,
			AllocationCount:   run.AllocationCount,
			ProviderReference: run.ProviderReference,
			FailureReason:     run.FailureReason,
			StartedAt:         run.StartedAt,
			FinishedAt:        run.FinishedAt,
		})
	}
	return out
}
