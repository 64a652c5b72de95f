package enums

import "slices"

// PayoutRunStatus summarizes one seller payout run.
type PayoutRunStatus string

const (
	PayoutRunStatusProcessing     PayoutRunStatus = "processing"
	PayoutRunStatusCompleted      PayoutRunStatus = "completed"
	PayoutRunStatusBelowThreshold PayoutRunStatus = "below_threshold"
	PayoutRunStatusNothingToPay   PayoutRunStatus = "nothing_to_pay"
	PayoutRunStatusFailed         PayoutRunStatus = "failed"
)

var validPayoutRunStatuses = []PayoutRunStatus{
	PayoutRunStatusProcessing,
	PayoutRunStatusCompleted,
	PayoutRunStatusBelowThreshold,
	PayoutRunStatusNothingToPay,
	PayoutRunStatusFailed,
}

func (p PayoutRunStatus) String() string {
	return string(p)
}

func (p PayoutRunStatus) IsValid() bool {
	return slices.Contains(validPayoutRunStatuses, p)
}

func ParsePayoutRunStatus(value string) (PayoutRunStatus, error) {
	return parseEnum("payout run status", value, validPayoutRunStatuses)
}
