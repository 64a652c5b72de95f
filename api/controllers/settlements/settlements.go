package settlements

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-escrow/api/controllers/actorcontext"
	"github.com/angelmondragon/packfinderz-escrow/api/controllers/reports"
	"github.com/angelmondragon/packfinderz-escrow/api/responses"
	"github.com/angelmondragon/packfinderz-escrow/api/validators"
	internalsettlements "github.com/angelmondragon/packfinderz-escrow/internal/settlements"
	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/logger"
)

const pdfContentType = "application/pdf"

type periodRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=9999"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

type markPaidRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required,max=120"`
}

type invoiceView struct {
	ID               uuid.UUID           `json:"id"`
	InvoiceNumber    string              `json:"invoice_number"`
	SellerID         uuid.UUID           `json:"seller_id"`
	SellerName       string              `json:"seller_name"`
	Year             int                 `json:"year"`
	Month            int                 `json:"month"`
	PeriodStart      time.Time           `json:"period_start"`
	PeriodEnd        time.Time           `json:"period_end"`
	Currency         string              `json:"currency"`
	OrderCount       int                 `json:"order_count"`
	GrossAmount      decimal.Decimal     `json:"gross_amount"`
	CommissionAmount decimal.Decimal     `json:"commission_amount"`
	PayoutAmount     decimal.Decimal     `json:"payout_amount"`
	AdjustmentCount  int                 `json:"adjustment_count"`
	AdjustmentAmount decimal.Decimal     `json:"adjustment_amount"`
	NetAmount        decimal.Decimal     `json:"net_amount"`
	TaxRate          decimal.Decimal     `json:"tax_rate"`
	TaxAmount        decimal.Decimal     `json:"tax_amount"`
	TotalAmount      decimal.Decimal     `json:"total_amount"`
	HasCorrections   bool                `json:"has_corrections"`
	Status           enums.InvoiceStatus `json:"status"`
	PaymentReference *string             `json:"payment_reference,omitempty"`
	IssuedAt         time.Time           `json:"issued_at"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
}

// Monthly returns the computed settlement of every seller for a period
// without issuing anything.
func Monthly(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		year, month, err := reports.ParsePeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.GetMonthlySettlements(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// GenerateInvoices issues the invoices of a period. Sellers already invoiced
// for it are returned unchanged.
func GenerateInvoices(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}

		var payload periodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoices, err := svc.GenerateMonthlyInvoices(r.Context(), payload.Year, payload.Month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"invoices": newInvoiceViews(invoices)})
	}
}

func ListInvoices(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		year, month, err := reports.ParsePeriod(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoices, err := svc.ListInvoices(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"invoices": newInvoiceViews(invoices)})
	}
}

// SellerInvoices lists the caller's invoices newest first.
func SellerInvoices(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoices, err := svc.ListSellerInvoices(r.Context(), actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"invoices": newInvoiceViews(invoices)})
	}
}

// GetInvoice returns one invoice. Sellers only see their own.
func GetInvoice(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		invoice, err := loadVisibleInvoice(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInvoiceView(invoice))
	}
}

// InvoicePDF renders the invoice document.
func InvoicePDF(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		invoice, err := loadVisibleInvoice(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		data, filename, err := svc.RenderInvoicePDF(r.Context(), invoice.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, pdfContentType, filename, data)
	}
}

// MarkPaid records the seller's settlement of an invoice. Repeating it with
// the same reference is a no-op.
func MarkPaid(svc internalsettlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		invoiceID, err := validators.ParsePathUUID(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload markPaidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.MarkInvoicePaid(r.Context(), invoiceID, validators.SanitizeString(payload.PaymentReference, 120))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInvoiceView(invoice))
	}
}

func loadVisibleInvoice(r *http.Request, svc internalsettlements.Service) (*models.Invoice, error) {
	actor, err := actorcontext.ResolveActor(r)
	if err != nil {
		return nil, err
	}
	invoiceID, err := validators.ParsePathUUID(r, "invoiceId")
	if err != nil {
		return nil, err
	}
	invoice, err := svc.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return invoice, nil
	case enums.ActorRoleSeller:
		if invoice.SellerID == actor.ID {
			return invoice, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
}

func newInvoiceViews(invoices []models.Invoice) []invoiceView {
	out := make([]invoiceView, 0, len(invoices))
	for i := range invoices {
		out = append(out, newInvoiceView(&invoices[i]))
	}
	return out
}

func newInvoiceView(inv *models.Invoice) invoiceView {
	return invoiceView{
		ID:               inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		SellerID:         inv.SellerID,
		SellerName:       inv.SellerName,
		Year:             inv.Year,
		Month:            inv.Month,
		PeriodStart:      inv.PeriodStart,
		PeriodEnd:        inv.PeriodEnd,
		Currency:         inv.Currency,
		OrderCount:       inv.OrderCount,
		GrossAmount:      inv.GrossAmount,
		CommissionAmount: inv.CommissionAmount,
		PayoutAmount:     inv.PayoutAmount,
		AdjustmentCount:  inv.AdjustmentCount,
		AdjustmentAmount: inv.AdjustmentAmount,
		NetAmount:        inv.NetAmount,
		TaxRate:          inv.TaxRate,
		TaxAmount:        inv.TaxAmount,
		TotalAmount:      inv.TotalAmount,
		HasCorrections:   inv.HasCorrections,
		Status:           inv.Status,
		PaymentReference: inv.PaymentReference,
		IssuedAt:         inv.IssuedAt,
		PaidAt:           inv.PaidAt,
	}
}
