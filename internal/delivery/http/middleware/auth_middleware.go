package middleware

import (
	"context"
	"net/http"

	"storefront-core/internal/domain"
	"storefront-core/pkg/utils"
)

// AuthMiddleware rejects requests without a valid session token. The user is
// built from the token claims; the settlement core has no user store.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if utils.TokenFromRequest(r) == "" {
			utils.WriteErrorBody(w, http.StatusUnauthorized, utils.ErrorBody{Error: "no token provided", Code: "unauthorized"})
			return
		}

		claims, err := utils.ExtractClaims(r)
		if err != nil {
			utils.WriteErrorBody(w, http.StatusUnauthorized, utils.ErrorBody{Error: "invalid token", Code: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), claims)))
	})
}

// OptionalAuth attaches the user when a valid token is present and lets
// guests through otherwise. A bad token is treated as no token.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := utils.ExtractClaims(r); err == nil {
			r = r.WithContext(withUser(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

func withUser(ctx context.Context, claims *utils.Claims) context.Context {
	user := &domain.User{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	}
	return context.WithValue(ctx, domain.UserContextKey, user)
}
