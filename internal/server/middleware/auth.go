// Package middleware provides HTTP middleware for API authentication.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const principalKey ContextKey = "principal"

// APIKeyHeader carries a shared API key
const APIKeyHeader = "X-API-Key"

// APIKeyPrincipal is the principal recorded for requests authenticated by API key
const APIKeyPrincipal = "api-key"

// TokenValidator validates a bearer token and returns its subject
type TokenValidator interface {
	ValidateToken(tokenString string) (subject string, err error)
}

// KeyVerifier checks a presented API key
type KeyVerifier interface {
	Verify(key string) bool
}

// Credentials lists the accepted credential kinds. A nil field disables that kind.
type Credentials struct {
	Tokens TokenValidator
	Keys   KeyVerifier
}

// Enabled reports whether any credential kind is configured
func (c Credentials) Enabled() bool {
	return c.Tokens != nil || c.Keys != nil
}

// AuthMiddleware rejects requests that present no accepted credential.
// An API key is tried first, then a bearer token. With no credential kinds
// configured every request passes through.
func AuthMiddleware(creds Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !creds.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := authenticate(creds, r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(creds Credentials, r *http.Request) (string, bool) {
	if creds.Keys != nil {
		if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" && creds.Keys.Verify(key) {
			return APIKeyPrincipal, true
		}
	}

	if creds.Tokens == nil {
		return "", false
	}
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	subject, err := creds.Tokens.ValidateToken(parts[1])
	if err != nil {
		return "", false
	}
	return subject, true
}

// Principal returns the authenticated caller recorded on the request, if any
func Principal(r *http.Request) (string, bool) {
	p, ok := r.Context().Value(principalKey).(string)
	return p, ok
}
