package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a configured CORS middleware for the given origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowCredentials := true
	for _, origin := range allowedOrigins {
		if origin == "*" {
			// Browsers reject credentialed requests against a wildcard origin.
			allowCredentials = false
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", CorrelationIDHeader},
		ExposedHeaders:   []string{CorrelationIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}
