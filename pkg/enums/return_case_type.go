package enums

import "slices"

// ReturnCaseType distinguishes returns from complaints.
type ReturnCaseType string

const (
	ReturnCaseTypeReturn    ReturnCaseType = "return"
	ReturnCaseTypeComplaint ReturnCaseType = "complaint"
)

var validReturnCaseTypes = []ReturnCaseType{
	ReturnCaseTypeReturn,
	ReturnCaseTypeComplaint,
}

func (r ReturnCaseType) String() string {
	return string(r)
}

func (r ReturnCaseType) IsValid() bool {
	return slices.Contains(validReturnCaseTypes, r)
}

func ParseReturnCaseType(value string) (ReturnCaseType, error) {
	return parseEnum("return case type", value, validReturnCaseTypes)
}
