package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// TokenValidator verifies a bearer token. *service.AuthService satisfies it.
type TokenValidator interface {
	ValidateJWT(ctx context.Context, token string) (*service.Principal, error)
}

// Authenticate returns an HTTP middleware that requires a valid bearer
// token in the Authorization header. On success the token's principal is
// attached to the request context; otherwise a 401 JSON error is returned.
func Authenticate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide a Bearer token.")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			principal, err := validator.ValidateJWT(r.Context(), token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant returns an HTTP middleware that only lets a request through
// when the tenant named by the {param} URL parameter is the tenant in the
// caller's token. It must be used after Authenticate, inside the route that
// declares param.
func RequireTenant(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if chi.URLParam(r, param) != principal.TenantID {
				writeAuthError(w, http.StatusForbidden, "Token is not valid for this tenant")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

// PrincipalEmail returns the caller's email, or "" when unauthenticated.
func PrincipalEmail(ctx context.Context) string {
	if p := GetPrincipal(ctx); p != nil {
		return p.Email
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
