package middleware

import (
	"context"
	"net/http"
)

// RequireAuthenticated returns middleware that answers 401 unless the
// session is Authenticated. Use it for API endpoints that have no login view
// to redirect to.
func RequireAuthenticated(source SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			snap := source.CurrentSession()
			if !snap.Authenticated() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
