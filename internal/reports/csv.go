package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Export is a rendered CSV document. Total counts every matching row; Rows
// counts the rows written, which is smaller when Truncated is set.
type Export struct {
	Filename  string `json:"filename"`
	Rows      int    `json:"rows"`
	Total     int    `json:"total"`
	Truncated bool   `json:"truncated"`
	Data      []byte `json:"-"`
}

// Column layouts are consumed by downstream tooling; append only.
var (
	sellerOrdersHeader = []string{
		"sub_order_number", "order_number", "created_at", "status", "payment_status", "quantity",
		"items_subtotal", "shipping_cost", "discount_total", "grand_total",
		"commission", "seller_payout", "released_to_buyer", "released_to_seller", "payout_status",
	}
	adminOrdersHeader = []string{
		"sub_order_number", "order_number", "created_at", "seller_id", "seller_name", "buyer_id", "buyer_name",
		"status", "payment_status", "quantity",
		"items_subtotal", "shipping_cost", "discount_total", "grand_total",
		"commission", "seller_payout", "released_to_buyer", "released_to_seller", "payout_status",
	}
	commissionHeader = []string{
		"seller_id", "seller_name", "order_count", "gross", "commission", "seller_payout",
		"released_to_buyer", "released_to_seller",
	}
	settlementHeader = []string{
		"seller_id", "seller_name", "period", "period_start", "period_end", "currency", "order_count",
		"gross", "commission", "payout", "adjustment_count", "adjustment_total",
	}
)

func render(filename string, header []string, rows [][]string, total int) (*Export, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	return &Export{
		Filename:  filename,
		Rows:      len(rows),
		Total:     total,
		Truncated: total > len(rows),
		Data:      buf.Bytes(),
	}, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func orderRecord(row OrderRow, admin bool) []string {
	payout := ""
	if row.PayoutStatus != nil {
		payout = string(*row.PayoutStatus)
	}
	head := []string{row.SubOrderNumber, row.OrderNumber, timestamp(row.CreatedAt)}
	if admin {
		head = append(head, row.SellerID.String(), row.SellerName, row.BuyerID.String(), row.BuyerName)
	}
	return append(head,
		string(row.Status),
		string(row.PaymentStatus),
		strconv.Itoa(row.Quantity),
		money(row.ItemsSubtotal),
		money(row.ShippingCost),
		money(row.DiscountTotal),
		money(row.GrandTotal),
		nullMoney(row.Commission),
		nullMoney(row.SellerPayout),
		nullMoney(row.ReleasedToBuyer),
		nullMoney(row.ReleasedToSeller),
		payout,
	)
}
