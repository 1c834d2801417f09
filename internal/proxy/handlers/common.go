package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pysugar/coach-connect/internal/auth/token"
	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/proxy/middleware"
	"github.com/pysugar/coach-connect/internal/session"
	"github.com/pysugar/coach-connect/internal/upstream"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// Settings carries the environment-dependent response behaviour.
type Settings struct {
	// Production marks cookies Secure and hides diagnostic detail.
	Production bool
}

// TokenSource yields a usable upstream token for a user.
type TokenSource interface {
	EnsureFresh(ctx context.Context, userID int64) (*userstore.TokenSet, error)
}

// OAuthClient is the upstream authorization server.
type OAuthClient interface {
	Exchange(ctx context.Context, code string) (*upstream.TokenResponse, error)
	Deauthorize(ctx context.Context, accessToken string) error
}

// ActivityAPI is the upstream resource server.
type ActivityAPI interface {
	ListActivities(ctx context.Context, accessToken string, q upstream.ActivityQuery) ([]json.RawMessage, error)
	AthleteStats(ctx context.Context, accessToken string, athleteID int64) (json.RawMessage, error)
}

// SessionIssuer signs session credentials.
type SessionIssuer interface {
	Issue(id session.Identity, scope string) (string, error)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes the failure envelope. An empty message is omitted.
func writeError(w http.ResponseWriter, status int, errText, message string) {
	body := map[string]interface{}{
		"success": false,
		"error":   errText,
	}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}

// detail returns err's text outside production only.
func (s Settings) detail(err error) string {
	if s.Production || err == nil {
		return ""
	}
	return err.Error()
}

func setAuthCookie(w http.ResponseWriter, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// mustIdentity returns the claims placed by RequireSession. A missing
// identity means the route was mounted without the gate.
func mustIdentity(w http.ResponseWriter, r *http.Request) (*session.Claims, bool) {
	claims, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", "No authentication token provided")
		return nil, false
	}
	return claims, true
}

// freshToken resolves the user's upstream token and writes the error
// response when that is not possible.
func freshToken(w http.ResponseWriter, r *http.Request, tokens TokenSource, s Settings, userID int64) (*userstore.TokenSet, bool) {
	t, err := tokens.EnsureFresh(r.Context(), userID)
	switch {
	case err == nil:
		return t, true
	case errors.Is(err, token.ErrTokensNotFound):
		writeError(w, http.StatusNotFound, "User tokens not found", "")
	case errors.Is(err, token.ErrRefreshFailed):
		writeError(w, http.StatusInternalServerError, "Token refresh failed", s.detail(err))
	default:
		logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", userID).Msg("token lookup failed")
		writeError(w, http.StatusInternalServerError, "Failed to load user tokens", s.detail(err))
	}
	return nil, false
}

// upstreamMessage is the client-facing text for an upstream failure.
func (s Settings) upstreamMessage(err error) string {
	if s.Production {
		return ""
	}
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(apiErr.Body), &body) == nil && body.Message != "" {
			return body.Message
		}
	}
	return err.Error()
}
