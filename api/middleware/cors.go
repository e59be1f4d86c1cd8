package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the member app's origin policy. With no origins configured the
// handler is returned untouched.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Chama-Token", "Idempotency-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Chama-Token", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
