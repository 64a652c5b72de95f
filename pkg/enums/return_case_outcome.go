package enums

import "slices"

// ReturnCaseOutcome is the resolution recorded on a case.
type ReturnCaseOutcome string

const (
	ReturnCaseOutcomeReplacement   ReturnCaseOutcome = "replacement"
	ReturnCaseOutcomeRepair        ReturnCaseOutcome = "repair"
	ReturnCaseOutcomePartialRefund ReturnCaseOutcome = "partial_refund"
	ReturnCaseOutcomeFullRefund    ReturnCaseOutcome = "full_refund"
	ReturnCaseOutcomeNoRefund      ReturnCaseOutcome = "no_refund"
)

var validReturnCaseOutcomes = []ReturnCaseOutcome{
	ReturnCaseOutcomeReplacement,
	ReturnCaseOutcomeRepair,
	ReturnCaseOutcomePartialRefund,
	ReturnCaseOutcomeFullRefund,
	ReturnCaseOutcomeNoRefund,
}

func (r ReturnCaseOutcome) String() string {
	return string(r)
}

func (r ReturnCaseOutcome) IsValid() bool {
	return slices.Contains(validReturnCaseOutcomes, r)
}

func ParseReturnCaseOutcome(value string) (ReturnCaseOutcome, error) {
	return parseEnum("return case outcome", value, validReturnCaseOutcomes)
}

// MovesMoney reports whether the outcome releases funds to the buyer.
func (r ReturnCaseOutcome) MovesMoney() bool {
	return r == ReturnCaseOutcomePartialRefund || r == ReturnCaseOutcomeFullRefund
}
