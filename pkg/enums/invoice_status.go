package enums

import "slices"

// InvoiceStatus tracks whether a commission invoice has been settled.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPending,
	InvoiceStatusPaid,
}

func (i InvoiceStatus) String() string {
	return string(i)
}

func (i InvoiceStatus) IsValid() bool {
	return slices.Contains(validInvoiceStatuses, i)
}

func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	return parseEnum("invoice status", value, validInvoiceStatuses)
}
