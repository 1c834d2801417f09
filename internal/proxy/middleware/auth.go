package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/metrics"
	"github.com/pysugar/coach-connect/internal/session"
)

// CookieName carries the session credential.
const CookieName = "auth_token"

type identityKey struct{}

// Verifier checks a session credential.
type Verifier interface {
	Verify(token string) (*session.Claims, error)
}

// WithIdentity stores verified claims on the context.
func WithIdentity(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, claims)
}

// IdentityFromContext returns the claims placed by a session gate.
func IdentityFromContext(ctx context.Context) (*session.Claims, bool) {
	claims, ok := ctx.Value(identityKey{}).(*session.Claims)
	return claims, ok && claims != nil
}

// credentialFromRequest looks at the cookie first, then the bearer header.
func credentialFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// RequireSession rejects requests without a valid session credential.
func RequireSession(v Verifier, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := credentialFromRequest(r)
			if token == "" {
				m.Verification(session.ReasonMissing)
				writeAuthError(w, "Authentication required", "No authentication token provided")
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				reason := session.FailureReason(err)
				m.Verification(reason)
				logging.FromContext(r.Context()).Info().
					Str("reason", reason).
					Str("path", r.URL.Path).
					Msg("🔒 session rejected")
				writeAuthError(w, "Invalid token", "Authentication token is invalid or expired")
				return
			}

			m.Verification(session.ReasonValid)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims)))
		})
	}
}

// OptionalSession attaches the identity when a valid credential is present
// and lets every request through.
func OptionalSession(v Verifier, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := credentialFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				m.Verification(session.FailureReason(err))
				next.ServeHTTP(w, r)
				return
			}
			m.Verification(session.ReasonValid)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, errText, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errText,
		"message": message,
	})
}
