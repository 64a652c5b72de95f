package reports

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/packfinderz-escrow/api/controllers/actorcontext"
	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	internalreports "github.com/angelmondragon/packfinderz-escrow/internal/reports"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

const (
	csvContentType = "text/csv; charset=utf-8"

	HeaderExportTruncated = "X-Export-Truncated"
	HeaderExportTotal     = "X-Export-Total"
)

// SellerOrdersCSV exports the caller's sub-orders.
func SellerOrdersCSV(svc internalreports.Service, logg *logger.Logger) http.HandlerFunc {
	return exportHandler(svc, logg, func(r *http.Request, actor orders.Actor) (*internalreports.Export, error) {
		filters, err := parseOrderFilters(r)
		if err != nil {
			return nil, err
		}
		return svc.ExportSellerOrders(r.Context(), actor.ID, actor, filters)
	})
}

// AdminOrdersCSV exports sub-orders across sellers.
func AdminOrdersCSV(svc internalreports.Service, logg *logger.Logger) http.HandlerFunc {
	return exportHandler(svc, logg, func(r *http.Request, actor orders.Actor) (*internalreports.Export, error) {
		filters, err := parseOrderFilters(r)
		if err != nil {
			return nil, err
		}
		return svc.ExportAdminOrders(r.Context(), actor, filters)
	})
}

func CommissionCSV(svc internalreports.Service, logg *logger.Logger) http.HandlerFunc {
	return exportHandler(svc, logg, func(r *http.Request, actor orders.Actor) (*internalreports.Export, error) {
		filters, err := parseOrderFilters(r)
		if err != nil {
			return nil, err
		}
		return svc.ExportCommissionSummary(r.Context(), actor, filters)
	})
}

// SettlementCSV exports the settlement of one calendar period.
func SettlementCSV(svc internalreports.Service, logg *logger.Logger) http.HandlerFunc {
	return exportHandler(svc, logg, func(r *http.Request, actor orders.Actor) (*internalreports.Export, error) {
		year, month, err := ParsePeriod(r)
		if err != nil {
			return nil, err
		}
		return svc.ExportSettlement(r.Context(), actor, year, month)
	})
}

// Sales returns a zero-filled sales series. Sellers read their own series;
// admins name the seller in the path.
func Sales(svc internalreports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
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

		query, err := parseSalesQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		series, err := svc.SalesSeries(r.Context(), sellerID, actor, query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, series)
	}
}

type exportFunc func(r *http.Request, actor orders.Actor) (*internalreports.Export, error)

func exportHandler(svc internalreports.Service, logg *logger.Logger, run exportFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		export, err := run(r, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(HeaderExportTruncated, strconv.FormatBool(export.Truncated))
		w.Header().Set(HeaderExportTotal, strconv.Itoa(export.Total))
		responses.WriteFile(w, csvContentType, export.Filename, export.Data)
	}
}

// ParsePeriod reads the required year and month query parameters.
func ParsePeriod(r *http.Request) (int, int, error) {
	if strings.TrimSpace(r.URL.Query().Get("year")) == "" || strings.TrimSpace(r.URL.Query().Get("month")) == "" {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "year and month are required")
	}
	year, err := validators.ParseQueryInt(r, "year", 0, 2000, 9999)
	if err != nil {
		return 0, 0, err
	}
	month, err := validators.ParseQueryInt(r, "month", 0, 1, 12)
	if err != nil {
		return 0, 0, err
	}
	return year, month, nil
}

func parseOrderFilters(r *http.Request) (internalreports.OrderFilters, error) {
	var filters internalreports.OrderFilters
	var err error
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
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

func parseSalesQuery(r *http.Request) (internalreports.SalesQuery, error) {
	var query internalreports.SalesQuery
	if raw := strings.TrimSpace(r.URL.Query().Get("bucket")); raw != "" {
		bucket, err := enums.ParseTimeBucket(raw)
		if err != nil {
			return query, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bucket")
		}
		query.Bucket = bucket
	}
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return query, err
	}
	if from != nil {
		query.From = *from
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return query, err
	}
	if to != nil {
		query.To = *to
	}
	query.ProductID = validators.ParseQueryString(r, "product_id", 120)
	query.Category = validators.ParseQueryString(r, "category", 200)
	return query, nil
}
