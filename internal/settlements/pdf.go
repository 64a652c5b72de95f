package settlements

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
)

// RenderInvoicePDF lays out the invoice on one A4 page. The output depends
// only on the invoice fields: document dates come from IssuedAt and the
// catalog is written in sorted order.
func RenderInvoicePDF(invoice *models.Invoice, issuer string) ([]byte, error) {
	if invoice == nil {
		return nil, errors.New("invoice required")
	}
	issued := invoice.IssuedAt.UTC()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(issued)
	pdf.SetModificationDate(issued)
	pdf.SetTitle(invoice.InvoiceNumber, true)
	pdf.SetAuthor(issuer, true)
	pdf.SetCreator(issuer, true)
	pdf.SetProducer(issuer, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, issuer, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, "Commission invoice "+invoice.InvoiceNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Issued "+issued.Format("2006-01-02"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "Seller", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	seller := invoice.SellerName
	if seller == "" {
		seller = invoice.SellerID.String()
	}
	pdf.CellFormat(0, 6, seller, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Period %s to %s", day(invoice.PeriodStart), day(invoice.PeriodEnd)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Orders", fmt.Sprintf("%d", invoice.OrderCount)},
		{"Gross sales", money(invoice.GrossAmount.StringFixed(2), invoice.Currency)},
		{"Commission", money(invoice.CommissionAmount.StringFixed(2), invoice.Currency)},
		{"Seller payout", money(invoice.PayoutAmount.StringFixed(2), invoice.Currency)},
		{fmt.Sprintf("Adjustments (%d)", invoice.AdjustmentCount), money(invoice.AdjustmentAmount.StringFixed(2), invoice.Currency)},
		{"Net", money(invoice.NetAmount.StringFixed(2), invoice.Currency)},
		{"Tax @ " + invoice.TaxRate.Shift(2).StringFixed(2) + "%", money(invoice.TaxAmount.StringFixed(2), invoice.Currency)},
	}
	for _, row := range rows {
		pdf.CellFormat(120, 7, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, row[1], "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(120, 8, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, money(invoice.TotalAmount.StringFixed(2), invoice.Currency), "1", 1, "R", false, 0, "")

	if invoice.HasCorrections {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, "This invoice includes refunds booked after orders became payout eligible.", "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func money(amount, currency string) string {
	return amount + " " + currency
}
