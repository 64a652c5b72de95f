package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/api/controllers/actorcontext"
	"github.com/angelmondragon/packfinderz-escrow/api/middleware"
	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	internalorders "github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pagination"
	"github.com/angelmondragon/packfinderz-escrow/pkg/types"
)

type checkoutConfirmRequest struct {
	Quote            internalorders.Quote          `json:"quote" validate:"required"`
	Address          types.Address                 `json:"address" validate:"required"`
	BuyerName        string                        `json:"buyer_name"`
	BuyerEmail       string                        `json:"buyer_email" validate:"omitempty,email"`
	PaymentReference string                        `json:"payment_reference" validate:"required"`
	Outcome          internalorders.PaymentOutcome `json:"outcome" validate:"required"`
}

type transitionRequest struct {
	Target         string      `json:"target" validate:"required"`
	ItemIDs        []uuid.UUID `json:"item_ids"`
	TrackingNumber *string     `json:"tracking_number"`
	Carrier        *string     `json:"carrier"`
	Note           *string     `json:"note" validate:"omitempty,max=500"`
}

type transitionResponse struct {
	Result   *internalorders.TransitionResult `json:"result"`
	SubOrder *subOrderView                    `json:"sub_order,omitempty"`
}

// CheckoutConfirm turns a paid quote into an order. Replaying the same
// payment reference returns the existing order with 200.
func CheckoutConfirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if actor.Role != enums.ActorRoleBuyer {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can check out"))
			return
		}

		var payload checkoutConfirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		email := strings.TrimSpace(payload.BuyerEmail)
		if email == "" {
			email = middleware.ActorEmailFromContext(r.Context())
		}

		order, created, err := svc.EnsureOrder(r.Context(), internalorders.EnsureOrderInput{
			Quote:   payload.Quote,
			Address: payload.Address,
			Buyer: internalorders.Buyer{
				ID:    actor.ID,
				Name:  validators.SanitizeString(payload.BuyerName, 120),
				Email: email,
			},
			PaymentReference: strings.TrimSpace(payload.PaymentReference),
			Outcome:          payload.Outcome,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, newOrderView(order, actor.Role))
	}
}

// BuyerOrders lists the caller's orders newest first.
func BuyerOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := parseStatus(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListBuyerOrders(r.Context(), actor, params, internalorders.BuyerOrderFilters{
			Status:   status,
			DateFrom: from,
			DateTo:   to,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order as seen by the caller. Sellers only get their
// own sub-orders and buyers never see escrow amounts.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParsePathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order, actor.Role))
	}
}

// SubOrders serves both the seller queue and the admin listing. The service
// pins sellers to their own sub-orders, so seller_id only matters for admins.
func SubOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildSubOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListSubOrders(r.Context(), actor, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Transition moves a sub-order, or some of its items, through the order
// state machine on behalf of a seller or admin.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subOrderID, err := validators.ParsePathUUID(r, "subOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Target))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		order, result, err := svc.TransitionSubOrder(r.Context(), internalorders.TransitionInput{
			SubOrderID: subOrderID,
			Actor:      actor,
			Request: internalorders.TransitionRequest{
				Target:         target,
				ItemIDs:        payload.ItemIDs,
				TrackingNumber: trimmed(payload.TrackingNumber),
				Carrier:        trimmed(payload.Carrier),
				Note:           trimmed(payload.Note),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := transitionResponse{Result: result}
		if order != nil {
			for i := range order.SubOrders {
				if order.SubOrders[i].ID == subOrderID {
					view := newSubOrderView(&order.SubOrders[i], actor.Role)
					resp.SubOrder = &view
					break
				}
			}
		}
		responses.WriteSuccess(w, resp)
	}
}

func parsePage(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func parseStatus(r *http.Request) (*enums.OrderStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, nil
	}
	status, err := enums.ParseOrderStatus(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
	}
	return &status, nil
}

func buildSubOrderFilters(r *http.Request) (internalorders.SubOrderFilters, error) {
	var filters internalorders.SubOrderFilters
	var err error
	if filters.Status, err = parseStatus(r); err != nil {
		return filters, err
	}
	if filters.SellerID, err = validators.ParseQueryUUID(r, "seller_id"); err != nil {
		return filters, err
	}
	if filters.BuyerID, err = validators.ParseQueryUUID(r, "buyer_id"); err != nil {
		return filters, err
	}
	if filters.DateFrom, err = validators.ParseQueryTime(r, "from"); err != nil {
		return filters, err
	}
	if filters.DateTo, err = validators.ParseQueryTime(r, "to"); err != nil {
		return filters, err
	}
	return filters, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
