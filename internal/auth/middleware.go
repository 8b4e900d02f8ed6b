package auth

import (
	"log"
	"net/http"
	"strings"
)

// Middleware validates JWTs and enforces role checks.
type Middleware struct {
	Secret []byte
	Policy Policy
	Logger *log.Logger
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, logger *log.Logger) *Middleware {
	return &Middleware{Secret: secret, Policy: policy, Logger: logger}
}

// Wrap applies auth and role checks to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(extractBearer(r), m.Secret)
		if err != nil {
			m.logf("event=auth_rejected path=%s error=%v", r.URL.Path, err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			m.logf("event=auth_forbidden path=%s subject=%s role=%s required=%s", r.URL.Path, claims.Subject, role, required)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) logf(format string, args ...any) {
	if m.Logger == nil {
		return
	}
	m.Logger.Printf(format, args...)
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
