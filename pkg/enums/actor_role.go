package enums

import "slices"

// ActorRole identifies who performs an action against an order or case.
type ActorRole string

const (
	ActorRoleBuyer  ActorRole = "buyer"
	ActorRoleSeller ActorRole = "seller"
	ActorRoleAdmin  ActorRole = "admin"
	ActorRoleSystem ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleBuyer,
	ActorRoleSeller,
	ActorRoleAdmin,
	ActorRoleSystem,
}

func (a ActorRole) String() string {
	return string(a)
}

func (a ActorRole) IsValid() bool {
	return slices.Contains(validActorRoles, a)
}

func ParseActorRole(value string) (ActorRole, error) {
	return parseEnum("actor role", value, validActorRoles)
}
