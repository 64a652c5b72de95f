package orders

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPaid:      {enums.OrderStatusPreparing, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusPreparing: {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusDelivered: {enums.OrderStatusRefunded},
}

// CanTransition reports whether from has a direct edge to to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func transitionError(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// planMoves returns the items a request moves to target. An empty result is
// a no-op. Whole sub-order requests skip items that are already closed or
// already at or past a forward target.
func planMoves(sub *models.SubOrder, target enums.OrderStatus, itemIDs []uuid.UUID) ([]*models.OrderItem, error) {
	if len(itemIDs) == 0 {
		if sub.Status == target {
			return nil, nil
		}
		if !CanTransition(sub.Status, target) {
			return nil, transitionError(sub.Status, target)
		}
		moved := make([]*models.OrderItem, 0, len(sub.Items))
		for i := range sub.Items {
			item := &sub.Items[i]
			if item.Status.IsTerminal() || item.Status == target {
				continue
			}
			if target.Progress() >= 0 && item.Status.Progress() >= target.Progress() {
				continue
			}
			if !CanTransition(item.Status, target) {
				return nil, transitionError(item.Status, target)
			}
			moved = append(moved, item)
		}
		return moved, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(itemIDs))
	moved := make([]*models.OrderItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate item id").
				WithDetails(map[string]any{"item_id": id.String()})
		}
		seen[id] = struct{}{}

		item := findItem(sub, id)
		if item == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item does not belong to sub-order").
				WithDetails(map[string]any{"item_id": id.String(), "sub_order_id": sub.ID.String()})
		}
		if item.Status == target {
			continue
		}
		if !CanTransition(item.Status, target) {
			return nil, transitionError(item.Status, target)
		}
		moved = append(moved, item)
	}
	return moved, nil
}

func findItem(sub *models.SubOrder, id uuid.UUID) *models.OrderItem {
	for i := range sub.Items {
		if sub.Items[i].ID == id {
			return &sub.Items[i]
		}
	}
	return nil
}

// DeriveStatus folds child statuses into the parent status: the least
// advanced active child wins; with no active child the parent is refunded if
// anything was refunded, else cancelled, else failed.
func DeriveStatus(statuses []enums.OrderStatus) enums.OrderStatus {
	var (
		least        enums.OrderStatus
		anyActive    bool
		anyRefunded  bool
		anyCancelled bool
	)
	for _, status := range statuses {
		switch {
		case status.Progress() >= 0:
			if !anyActive || status.Progress() < least.Progress() {
				least = status
			}
			anyActive = true
		case status == enums.OrderStatusRefunded:
			anyRefunded = true
		case status == enums.OrderStatusCancelled:
			anyCancelled = true
		}
	}
	switch {
	case anyActive:
		return least
	case anyRefunded:
		return enums.OrderStatusRefunded
	case anyCancelled:
		return enums.OrderStatusCancelled
	default:
		return enums.OrderStatusFailed
	}
}

func itemStatuses(sub *models.SubOrder) []enums.OrderStatus {
	out := make([]enums.OrderStatus, 0, len(sub.Items))
	for _, item := range sub.Items {
		out = append(out, item.Status)
	}
	return out
}

func subOrderStatuses(order *models.Order) []enums.OrderStatus {
	out := make([]enums.OrderStatus, 0, len(order.SubOrders))
	for _, sub := range order.SubOrders {
		out = append(out, sub.Status)
	}
	return out
}
