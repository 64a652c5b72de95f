package notifications

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	TemplateOrderConfirmed = "order_confirmed"
	TemplatePaymentFailed  = "payment_failed"
	TemplateOrderShipped   = "order_shipped"
	TemplateRefundIssued   = "refund_issued"
	TemplateCaseResolved   = "case_resolved"
	TemplateCaseEscalated  = "case_escalated"
)

// OrderLine is the slice of an order item needed to render a message.
type OrderLine struct {
	Title     string
	Quantity  int
	LineTotal decimal.Decimal
}

// OrderConfirmed renders the message sent to the buyer once an order exists.
func OrderConfirmed(to, orderNumber, currency string, total decimal.Decimal, lines []OrderLine) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Thank you for your order %s.\n\n", orderNumber)
	for _, line := range lines {
		fmt.Fprintf(&body, "  %d x %s  %s %s\n", line.Quantity, line.Title, line.LineTotal.StringFixed(2), currency)
	}
	fmt.Fprintf(&body, "\nTotal: %s %s\n", total.StringFixed(2), currency)
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Order %s confirmed", orderNumber),
		Body:     body.String(),
		Template: TemplateOrderConfirmed,
	}
}

// PaymentFailed tells the buyer the checkout payment did not go through.
func PaymentFailed(to, orderNumber string) Message {
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Payment for order %s failed", orderNumber),
		Body:     fmt.Sprintf("We could not confirm the payment for order %s. No funds were captured.\n", orderNumber),
		Template: TemplatePaymentFailed,
	}
}

// OrderShipped carries the tracking snapshot of a sub-order.
func OrderShipped(to, subOrderNumber, carrier, trackingNumber string) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Your package for %s is on its way.\n", subOrderNumber)
	if carrier != "" {
		fmt.Fprintf(&body, "Carrier: %s\n", carrier)
	}
	if trackingNumber != "" {
		fmt.Fprintf(&body, "Tracking number: %s\n", trackingNumber)
	}
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("%s has shipped", subOrderNumber),
		Body:     body.String(),
		Template: TemplateOrderShipped,
	}
}

// RefundIssued confirms funds were released back to the buyer.
func RefundIssued(to, subOrderNumber, currency string, amount decimal.Decimal) Message {
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Refund for %s", subOrderNumber),
		Body:     fmt.Sprintf("A refund of %s %s for %s has been issued.\n", amount.StringFixed(2), currency, subOrderNumber),
		Template: TemplateRefundIssued,
	}
}

// CaseResolved informs a case party about the final decision.
func CaseResolved(to, caseNumber, outcome, note string) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Case %s has been resolved.\nOutcome: %s\n", caseNumber, strings.ReplaceAll(outcome, "_", " "))
	if note != "" {
		fmt.Fprintf(&body, "Note: %s\n", note)
	}
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Case %s resolved", caseNumber),
		Body:     body.String(),
		Template: TemplateCaseResolved,
	}
}

// CaseEscalated tells the parties an admin is now reviewing the case.
func CaseEscalated(to, caseNumber string) Message {
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Case %s escalated", caseNumber),
		Body:     fmt.Sprintf("Case %s is now under admin review.\n", caseNumber),
		Template: TemplateCaseEscalated,
	}
}
