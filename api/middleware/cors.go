package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the dashboards on origins to call the API with credentials.
// Export and replay headers are exposed so the browser can read them.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, requestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", "X-Export-Truncated", "X-Export-Total", ReplayedHeader, requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
