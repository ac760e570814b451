package httpapi

import (
	"net/http"

	"roaming/internal/security"
)

// RequireBearer rejects requests without the admin API key. With no key
// configured every request is rejected.
func RequireBearer(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, ok := security.BearerToken(r.Header.Get("Authorization"))
		if !ok || !security.TokenMatches(presented, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
