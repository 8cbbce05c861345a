package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Authenticator validates a bearer token and returns its principal
type Authenticator interface {
	Authenticate(token string) (uuid.UUID, error)
}

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal stores an authenticated principal in the context
func WithPrincipal(ctx context.Context, principal uuid.UUID) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext returns the authenticated principal, if any
func PrincipalFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := ctx.Value(principalContextKey).(uuid.UUID)
	return p, ok
}

// BearerToken extracts the token from the Authorization header, or
// the token query parameter as a fallback for websocket upgrades.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware resolves a bearer token into a context principal.
// Requests without a token pass through unauthenticated; handlers
// that need a principal enforce it with RequireAuth.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				if principal, err := auth.Authenticate(token); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests that carry no valid principal
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthorized",
				"message": "Valid bearer token required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
