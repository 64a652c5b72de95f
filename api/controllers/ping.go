package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-escrow/api/middleware"
	"github.com/angelmondragon/packfinderz-escrow/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the authenticated actor so clients can check a token.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope":      "private",
			"status":     "ok",
			"actor_id":   middleware.ActorIDFromContext(r.Context()),
			"actor_role": middleware.RoleFromContext(r.Context()),
		})
	}
}
