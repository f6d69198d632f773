package auth

import (
	"net/http"
	"strings"

	"github.com/pawmart/api/internal/platform/httpx"
)

// Headers populated by the gateway once it has verified the caller.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// Middleware extracts the gateway-verified identity headers and stores
// the identity on the request context. Requests without a user header
// are rejected.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if uid == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "missing caller identity", http.StatusUnauthorized))
				return
			}
			role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))
			if role == "" {
				role = RoleUser
			}
			identity := &Identity{UID: uid, Role: role}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole rejects requests whose identity lacks all of the given
// roles. It must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "missing caller identity", http.StatusUnauthorized))
				return
			}
			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "caller role not permitted", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
