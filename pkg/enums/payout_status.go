package enums

import "slices"

// PayoutStatus tracks where an escrow allocation is in the seller payout flow.
type PayoutStatus string

const (
	PayoutStatusScheduled  PayoutStatus = "scheduled"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusScheduled,
	PayoutStatusProcessing,
	PayoutStatusPaid,
	PayoutStatusFailed,
}

func (p PayoutStatus) String() string {
	return string(p)
}

func (p PayoutStatus) IsValid() bool {
	return slices.Contains(validPayoutStatuses, p)
}

func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return parseEnum("payout status", value, validPayoutStatuses)
}
