package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Authenticator verifies admin requests before they reach handlers. The admin
// surface is bearer-token only; callers holding the token act as the engine
// controller.
type Authenticator struct {
	bearerToken string
}

// Principal describes an authenticated actor accessing the admin API.
type Principal struct {
	Method string
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// NewAuthenticator constructs an authenticator for the supplied bearer token.
func NewAuthenticator(token string) (*Authenticator, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("bearer token must be configured")
	}
	return &Authenticator{bearerToken: trimmed}, nil
}

// Middleware enforces authentication for admin endpoints.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		principal, ok := a.authenticate(r)
		if ok {
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Principal, bool) {
	if a == nil || r == nil {
		return nil, false
	}
	token := parseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.bearerToken)) != 1 {
		return nil, false
	}
	return &Principal{Method: "bearer"}, true
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(trimmed) <= len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(trimmed[len(prefix):])
}
