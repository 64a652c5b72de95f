package enums

import "slices"

// PaymentOutcome is the confirmed/failed result attached to a checkout.
type PaymentOutcome string

const (
	PaymentOutcomeConfirmed PaymentOutcome = "confirmed"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

var validPaymentOutcomes = []PaymentOutcome{
	PaymentOutcomeConfirmed,
	PaymentOutcomeFailed,
}

func (p PaymentOutcome) String() string {
	return string(p)
}

func (p PaymentOutcome) IsValid() bool {
	return slices.Contains(validPaymentOutcomes, p)
}

func ParsePaymentOutcome(value string) (PaymentOutcome, error) {
	return parseEnum("payment outcome", value, validPaymentOutcomes)
}
