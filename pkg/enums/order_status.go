package enums

import "slices"

// OrderStatus is the lifecycle status shared by orders, sub-orders and line items.
type OrderStatus string

const (
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusFailed    OrderStatus = "failed"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPaid,
	OrderStatusPreparing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusFailed,
}

func (o OrderStatus) String() string {
	return string(o)
}

func (o OrderStatus) IsValid() bool {
	return slices.Contains(validOrderStatuses, o)
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseEnum("order status", value, validOrderStatuses)
}

// IsTerminal reports whether no further transition can leave the status.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Progress orders the fulfilment states; closed states report -1.
func (o OrderStatus) Progress() int {
	switch o {
	case OrderStatusPaid:
		return 0
	case OrderStatusPreparing:
		return 1
	case OrderStatusShipped:
		return 2
	case OrderStatusDelivered:
		return 3
	default:
		return -1
	}
}
