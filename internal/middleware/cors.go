// Package middleware provides HTTP middleware for the IntelliForm API.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the given origins. Credentials are only allowed when every
// origin is explicit, so a wildcard never echoes back with cookies.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	credentials := len(allowedOrigins) > 0
	for _, o := range allowedOrigins {
		if o == "*" {
			credentials = false
			break
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: credentials,
		MaxAge:           300,
	})
}
