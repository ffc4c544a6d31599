package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/steeplehq/steeple/internal/identity"
	"github.com/steeplehq/steeple/internal/model"
)

type contextKeyAuth string

const (
	// identityKey is the context key for the authenticated user.
	identityKey contextKeyAuth = "identity"
	// tokenKey is the context key for the raw bearer token.
	tokenKey contextKeyAuth = "token"
)

// Authenticate returns an HTTP middleware that resolves the Authorization
// bearer token through the identity provider. On success the user and the raw
// token are attached to the request context; on failure a 401 JSON error is
// returned.
func Authenticate(idp identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			u, err := idp.UserForToken(r.Context(), token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, u)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSuperAdmin returns an HTTP middleware that restricts access to the
// super-admin account. It must be used after Authenticate in the chain.
func RequireSuperAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := GetIdentity(r.Context())
			if u == nil || u.Role != model.RoleSuperAdmin {
				writeAuthError(w, http.StatusForbidden, "Super admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from the Authorization header. Returns an
// empty string when the header is absent or not a Bearer scheme.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// GetIdentity extracts the authenticated user from the context. Returns nil
// for an unauthenticated request.
func GetIdentity(ctx context.Context) *identity.User {
	if u, ok := ctx.Value(identityKey).(*identity.User); ok {
		return u
	}
	return nil
}

// GetToken extracts the raw bearer token from the context.
func GetToken(ctx context.Context) string {
	if t, ok := ctx.Value(tokenKey).(string); ok {
		return t
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid import cycle with handler package
	w.Write([]byte(`{"error":{"code":` + httpStatusString(status) + `,"message":"` + message + `"}}`))
}

func httpStatusString(code int) string {
	switch code {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
