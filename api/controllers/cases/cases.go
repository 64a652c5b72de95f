package cases

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/api/controllers/actorcontext"
	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	internalcases "github.com/angelmondragon/packfinderz-escrow/internal/cases"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

const (
	defaultListLimit     = 50
	maxListLimit         = 200
	defaultMetricsWindow = 30 * 24 * time.Hour
)

type createCaseRequest struct {
	SubOrderID  uuid.UUID                 `json:"sub_order_id" validate:"required"`
	Type        string                    `json:"type" validate:"required"`
	Reason      string                    `json:"reason" validate:"required,max=200"`
	Description *string                   `json:"description" validate:"omitempty,max=2000"`
	Items       []internalcases.ItemInput `json:"items" validate:"omitempty,dive"`
}

type reviewRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note" validate:"omitempty,max=1000"`
}

type resolveRequest struct {
	Outcome      string           `json:"outcome" validate:"required"`
	RefundAmount *decimal.Decimal `json:"refund_amount" validate:"omitempty,money"`
	Note         *string          `json:"note" validate:"omitempty,max=1000"`
}

type escalateRequest struct {
	Note *string `json:"note" validate:"omitempty,max=1000"`
}

type messageRequest struct {
	Body string `json:"body" validate:"required"`
}

// Create opens a return or complaint for a delivered sub-order.
func Create(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createCaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseType, err := enums.ParseReturnCaseType(strings.TrimSpace(payload.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid case type"))
			return
		}

		rc, err := svc.CreateReturnRequest(r.Context(), internalcases.CreateInput{
			SubOrderID:  payload.SubOrderID,
			Actor:       actor,
			Type:        caseType,
			Reason:      validators.SanitizeString(payload.Reason, 200),
			Description: payload.Description,
			Items:       payload.Items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCaseView(rc, nil))
	}
}

// List returns the cases visible to the caller. Buyers and sellers are
// pinned to their own cases; admins may filter by seller or buyer.
func List(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters internalcases.Filters
		if filters.Limit, err = validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.SellerID, err = validators.ParseQueryUUID(r, "seller_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filters.BuyerID, err = validators.ParseQueryUUID(r, "buyer_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseReturnCaseStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		views, err := svc.ListCases(r.Context(), actor, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]caseView, 0, len(views))
		for i := range views {
			sla := views[i].SLA
			out = append(out, newCaseView(views[i].Case, &sla))
		}
		responses.WriteSuccess(w, map[string]any{"cases": out})
	}
}

// Get returns one case with its SLA state.
func Get(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, caseID, err := resolveCaseRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetCase(r.Context(), caseID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCaseView(view.Case, &view.SLA))
	}
}

// Review records the seller's approve or reject decision.
func Review(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, caseID, err := resolveCaseRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseReturnCaseStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid case status"))
			return
		}

		rc, err := svc.UpdateReturnCaseForSeller(r.Context(), caseID, actor, internalcases.SellerUpdateInput{
			Status: status,
			Note:   payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCaseView(rc, nil))
	}
}

// SellerResolve closes a case on the seller's terms.
func SellerResolve(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveHandler(svc, logg, false)
}

// AdminResolve closes an escalated case.
func AdminResolve(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveHandler(svc, logg, true)
}

// Escalate hands a case to admin review. Any party of the case may ask.
func Escalate(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, caseID, err := resolveCaseRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload escalateRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		rc, err := svc.EscalateReturnCaseForAdmin(r.Context(), caseID, actor, payload.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCaseView(rc, nil))
	}
}

// Messages returns the case thread oldest first.
func Messages(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, caseID, err := resolveCaseRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		messages, err := svc.ListMessages(r.Context(), caseID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"messages": newMessageViews(messages)})
	}
}

func PostMessage(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, caseID, err := resolveCaseRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload messageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		msg, err := svc.AddMessage(r.Context(), caseID, actor, payload.Body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newMessageView(msg))
	}
}

// SellerMetrics reports SLA performance. Sellers always get their own
// numbers; admins pass the seller in the path.
func SellerMetrics(svc internalcases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sellerID := actor.ID
		if actor.Role == enums.ActorRoleAdmin {
			if sellerID, err = validators.ParsePathUUID(r, "sellerId"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		from, to, err := metricsWindow(r, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		metrics, err := svc.SellerSLAMetrics(r.Context(), sellerID, actor, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, metrics)
	}
}

func resolveHandler(svc internalcases.Service, logg *logger.Logger, admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cases service unavailable"))
			return
		}
		actor, caseID, err := resolveCaseRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := enums.ParseReturnCaseOutcome(strings.TrimSpace(payload.Outcome))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
			return
		}
		input := internalcases.ResolveInput{
			Outcome:      outcome,
			RefundAmount: payload.RefundAmount,
			Note:         payload.Note,
		}

		var rc *models.ReturnCase
		if admin {
			rc, err = svc.ResolveReturnCaseForAdmin(r.Context(), caseID, actor, input)
		} else {
			rc, err = svc.ResolveReturnCaseForSeller(r.Context(), caseID, actor, input)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCaseView(rc, nil))
	}
}

func resolveCaseRequest(r *http.Request) (orders.Actor, uuid.UUID, error) {
	actor, err := actorcontext.ResolveActor(r)
	if err != nil {
		return orders.Actor{}, uuid.Nil, err
	}
	caseID, err := validators.ParsePathUUID(r, "caseId")
	if err != nil {
		return orders.Actor{}, uuid.Nil, err
	}
	return actor, caseID, nil
}

// metricsWindow defaults to the trailing thirty days.
func metricsWindow(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := now
	if to != nil {
		end = *to
	}
	start := end.Add(-defaultMetricsWindow)
	if from != nil {
		start = *from
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "date range is inverted")
	}
	return start, end, nil
}
