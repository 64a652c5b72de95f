// Package auth verifies the bearer tokens buyers, sellers and admins present.
// Tokens are issued by the marketplace identity service; Mint exists for
// local development and tests.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-escrow/pkg/enums"
)

// Actor is the identity a token asserts. A seller token carries the seller
// id as ID.
type Actor struct {
	ID    uuid.UUID
	Role  enums.ActorRole
	Email string
}

type Claims struct {
	ActorID uuid.UUID       `json:"actor_id"`
	Role    enums.ActorRole `json:"role"`
	Email   string          `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() Actor {
	return Actor{ID: c.ActorID, Role: c.Role, Email: c.Email}
}

// check rejects the system role, which belongs to jobs and signed callbacks
// and never to a client token.
func (a Actor) check() error {
	switch {
	case !a.Role.IsValid() || a.Role == enums.ActorRoleSystem:
		return ErrInvalidActor
	case a.ID == uuid.Nil:
		return ErrInvalidActor
	}
	return nil
}
