package enums

import "slices"

// PaymentStatus tracks what the payment provider reports for an order.
type PaymentStatus string

const (
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusFailed        PaymentStatus = "failed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPaid,
	PaymentStatusPartialRefund,
	PaymentStatusRefunded,
	PaymentStatusFailed,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	return slices.Contains(validPaymentStatuses, p)
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parseEnum("payment status", value, validPaymentStatuses)
}
