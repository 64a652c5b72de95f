package actorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/api/middleware"
	"github.com/angelmondragon/packfinderz-escrow/internal/orders"
	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-escrow/pkg/errors"
)

// ResolveActor turns the authenticated claims into the actor the escrow
// services authorize against.
func ResolveActor(r *http.Request) (orders.Actor, error) {
	ctx := r.Context()
	rawID := middleware.ActorIDFromContext(ctx)
	if rawID == "" {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil || role == enums.ActorRoleSystem {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "actor role not allowed")
	}
	return orders.Actor{ID: id, Role: role}, nil
}
