package api

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyAuth validates the X-API-Key header against key using a constant
// time comparison. Requests that do not carry the exact key get a 403 and
// never reach the wrapped handler.
func APIKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				writeError(w, r, http.StatusForbidden, "forbidden", "Could not validate API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
