package enums

import "slices"

// ReturnCaseStatus is the state of a return or complaint case.
type ReturnCaseStatus string

const (
	ReturnCaseStatusPendingSellerReview ReturnCaseStatus = "pending_seller_review"
	ReturnCaseStatusApproved            ReturnCaseStatus = "approved"
	ReturnCaseStatusRejected            ReturnCaseStatus = "rejected"
	ReturnCaseStatusUnderAdminReview    ReturnCaseStatus = "under_admin_review"
	ReturnCaseStatusCompleted           ReturnCaseStatus = "completed"
)

var validReturnCaseStatuses = []ReturnCaseStatus{
	ReturnCaseStatusPendingSellerReview,
	ReturnCaseStatusApproved,
	ReturnCaseStatusRejected,
	ReturnCaseStatusUnderAdminReview,
	ReturnCaseStatusCompleted,
}

func (r ReturnCaseStatus) String() string {
	return string(r)
}

func (r ReturnCaseStatus) IsValid() bool {
	return slices.Contains(validReturnCaseStatuses, r)
}

func ParseReturnCaseStatus(value string) (ReturnCaseStatus, error) {
	return parseEnum("return case status", value, validReturnCaseStatuses)
}

// IsOpen reports whether the case still awaits a resolution.
func (r ReturnCaseStatus) IsOpen() bool {
	return r != ReturnCaseStatusCompleted
}
