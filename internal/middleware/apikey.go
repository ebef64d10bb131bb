package middleware

import (
	"crypto/subtle"
	"net/http"

	"torchlight/internal/httputil"
)

// APIKey gates mutating methods behind a shared X-API-Key header. An
// empty configured key disables the gate; reads always pass so
// dashboards can watch sessions without credentials.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				httputil.RespondJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{
						"kind":    "Unauthorized",
						"message": "missing or invalid API key",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
