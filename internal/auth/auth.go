// Package auth handles bearer-token authentication for the API:
// HS256 JWT issuance at login, validation middleware, and the
// authenticated identity carried through request contexts.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/feedgate/feedgate/internal/domain"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   domain.Role
	Status domain.UserStatus
}

// contextKey is used for storing Identity in context
type contextKey struct{}

var identityKey = contextKey{}

// WithIdentity adds an Identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity retrieves the Identity from context, nil when the request
// was not authenticated.
func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// Authenticator validates a request's credentials.
type Authenticator interface {
	// Authenticate returns the caller's Identity, or nil when the
	// request carries no valid credential.
	Authenticate(r *http.Request) *Identity
}

// Middleware requires authentication on every route except the listed
// public paths. Paths ending in "/*" match by prefix.
func Middleware(a Authenticator, publicPaths []string) func(http.Handler) http.Handler {
	publicSet := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		publicSet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path, publicSet) {
				next.ServeHTTP(w, r)
				return
			}

			if id := a.Authenticate(r); id != nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="feedgate"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"status":"UNAUTHORIZED","message":"valid authentication required"}`))
		})
	}
}

// isPublicPath checks if the given path should skip authentication
func isPublicPath(path string, publicSet map[string]bool) bool {
	if publicSet[path] {
		return true
	}
	for p := range publicSet {
		if strings.HasSuffix(p, "/*") {
			prefix := strings.TrimSuffix(p, "*")
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
	}
	return false
}
