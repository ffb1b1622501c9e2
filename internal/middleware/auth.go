package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	APIKeyKey    contextKey = "api_key"
)

// BearerAuth validates the opaque bearer token from the Authorization header
// and maps it to an internal principal id. tokens is principal -> token.
func BearerAuth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health check
			if r.URL.Path == "/health" || r.URL.Path == "/ready" || r.URL.Path == "/live" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Support both "Bearer <token>" and "<token>" formats
			token := strings.TrimPrefix(auth, "Bearer ")
			token = strings.TrimSpace(token)

			if token == "" {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			// Constant-time comparison to prevent timing attacks
			valid := false
			var principal string
			for p, t := range tokens {
				if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
					valid = true
					principal = p
					break
				}
			}

			if !valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if err := ValidatePrincipalID(principal); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			ctx = context.WithValue(ctx, APIKeyKey, token)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipalFromContext extracts the authenticated principal from context
func GetPrincipalFromContext(ctx context.Context) string {
	if principal, ok := ctx.Value(PrincipalKey).(string); ok {
		return principal
	}
	return ""
}
