package middleware

import (
	"net/http"

	"storefront-core/internal/domain"
	"storefront-core/pkg/utils"
)

// AdminMiddleware ensures the authenticated user has the 'admin' role.
// MUST be used AFTER AuthMiddleware.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
		if !ok || user == nil {
			utils.WriteErrorBody(w, http.StatusUnauthorized, utils.ErrorBody{Error: "no user found in context", Code: "unauthorized"})
			return
		}

		if !user.IsAdmin() {
			utils.WriteErrorBody(w, http.StatusForbidden, utils.ErrorBody{Error: "admins only", Code: "forbidden"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
