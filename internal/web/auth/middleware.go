package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/conduit-lang/hierroutes/internal/web/response"
)

type claimsKey struct{}

// WithClaims returns a context carrying claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims of the authenticated caller, or nil
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// Authorize checks the caller in ctx for permission
func Authorize(ctx context.Context, permission Permission) error {
	claims := ClaimsFrom(ctx)
	if claims == nil {
		return ErrUnauthenticated
	}
	if !HasPermission(claims.Roles, permission) {
		return ErrForbidden
	}
	return nil
}

// Authenticate validates the bearer token of every request and stores its
// claims in the request context
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				response.Unauthorized(w, r, "Authorization required")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.Unauthorized(w, r, "Invalid authorization format")
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				response.Unauthorized(w, r, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequirePermission rejects callers without permission: 401 when no caller
// is authenticated, 403 otherwise
func RequirePermission(permission Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := Authorize(r.Context(), permission)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrForbidden):
				response.Forbidden(w, r, "Missing permission "+string(permission))
			default:
				response.Unauthorized(w, r, "")
			}
		})
	}
}
