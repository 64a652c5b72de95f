package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-escrow/pkg/db/models"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
	"github.com/angelmondragon/packfinderz-escrow/pkg/pagination"
)

// GetOrder loads an order for the caller. Sellers only see their own
// sub-orders of it.
func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return order, nil
	case enums.ActorRoleBuyer:
		if order.BuyerID == actor.ID {
			return order, nil
		}
	case enums.ActorRoleSeller:
		visible := order.SubOrders[:0:0]
		for _, sub := range order.SubOrders {
			if sub.SellerID == actor.ID {
				visible = append(visible, sub)
			}
		}
		if len(visible) > 0 {
			order.SubOrders = visible
			return order, nil
		}
	}
	// Foreign orders look missing rather than forbidden.
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *service) ListSubOrders(ctx context.Context, actor Actor, params pagination.Params, filters SubOrderFilters) (*SubOrderList, error) {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
	case enums.ActorRoleSeller:
		sellerID := actor.ID
		filters.SellerID = &sellerID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "sub-order listings are for sellers and admins")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date range is inverted")
	}
	list, err := s.repo.ListSubOrders(ctx, params, filters)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sub-orders")
	}
	return list, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, actor Actor, params pagination.Params, filters BuyerOrderFilters) (*BuyerOrderList, error) {
	if actor.Role != enums.ActorRoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer order listings are for buyers")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	list, err := s.repo.ListBuyerOrders(ctx, actor.ID, params, filters)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return list, nil
}
