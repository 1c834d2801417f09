package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/pysugar/coach-connect/internal/auth/strava"
	"github.com/pysugar/coach-connect/internal/auth/token"
	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/metrics"
	"github.com/pysugar/coach-connect/internal/proxy/middleware"
	"github.com/pysugar/coach-connect/internal/secrets"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// ExchangeTokenHandler completes the OAuth flow: it trades the code, stores
// the profile and tokens, sets the session cookie and sends the browser to
// the frontend dashboard.
func ExchangeTokenHandler(oauth OAuthClient, store *userstore.Store, sessions SessionIssuer, sp secrets.Provider, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)
		q := r.URL.Query()

		code := q.Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "Authorization code is required", "")
			return
		}
		if !strava.VerifyState(r) {
			writeError(w, http.StatusBadRequest, "Invalid OAuth state", "")
			return
		}

		oauthSecrets, err := sp.Get(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Authentication failed", "Unable to complete Strava authentication")
			return
		}

		resp, err := oauth.Exchange(ctx, code)
		if err != nil {
			logger.Error().Err(err).Msg("❌ code exchange failed")
			writeError(w, http.StatusInternalServerError, "Authentication failed", "Unable to complete Strava authentication")
			return
		}

		athlete := *resp.Athlete
		tokens := resp.Tokens
		if tokens.Scope == "" {
			tokens.Scope = q.Get("scope")
		}
		if tokens.Scope == "" {
			tokens.Scope = defaultScope
		}

		if _, err := store.SaveProfileAndTokens(ctx, athlete.ID, athlete, &tokens, userstore.DefaultAppFields()); err != nil {
			logger.Error().Err(err).Int64("user_id", athlete.ID).Msg("❌ failed to store profile")
			writeError(w, http.StatusInternalServerError, "Authentication failed", "Unable to complete Strava authentication")
			return
		}

		signed, err := sessions.Issue(identityFromAthlete(athlete.ID, athlete), tokens.Scope)
		if err != nil {
			logger.Error().Err(err).Msg("❌ session signing failed")
			writeError(w, http.StatusInternalServerError, "Authentication failed", "Unable to complete Strava authentication")
			return
		}

		setAuthCookie(w, signed, s.Production)
		strava.ClearState(w, s.Production)
		logger.Info().Int64("user_id", athlete.ID).Msg("✅ athlete authenticated")

		http.Redirect(w, r, strings.TrimRight(oauthSecrets.RedirectURI, "/")+"/dashboard", http.StatusFound)
	}
}

// defaultScope applies when neither the token response nor the callback
// names the granted scope.
const defaultScope = "read"

type logoutRequest struct {
	RevokeUpstream *bool `json:"revoke_upstream"`
	RevokeStrava   *bool `json:"revoke_strava"`
}

func (l logoutRequest) revoke() bool {
	if l.RevokeUpstream != nil {
		return *l.RevokeUpstream
	}
	return l.RevokeStrava != nil && *l.RevokeStrava
}

// LogoutHandler always clears the session cookie. With revoke_upstream and a
// known identity it also deauthorizes the app upstream, best effort.
func LogoutHandler(oauth OAuthClient, store *userstore.Store, m *metrics.Metrics, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req logoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logging.FromContext(ctx).Debug().Err(err).Msg("logout: ignoring unreadable body")
			req = logoutRequest{}
		}

		revoked := false
		if claims, ok := middleware.IdentityFromContext(ctx); ok && req.revoke() {
			revoked = revokeUpstream(r, oauth, store.GetTokens, m, claims.UserID)
		}

		clearAuthCookie(w, s.Production)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":          true,
			"message":          "Logged out successfully",
			"upstream_revoked": revoked,
		})
	}
}

// tokenLookup yields the access token used for deauthorization.
type tokenLookup func(ctx context.Context, userID int64) (*userstore.TokenSet, error)

// revokeUpstream deauthorizes the user's token. Failures are logged and
// never fail the caller.
func revokeUpstream(r *http.Request, oauth OAuthClient, lookup tokenLookup, m *metrics.Metrics, userID int64) bool {
	logger := logging.FromContext(r.Context())
	tokens, err := lookup(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, userstore.ErrNotFound) && !errors.Is(err, token.ErrTokensNotFound) {
			logger.Warn().Err(err).Int64("user_id", userID).Msg("revoke: token lookup failed")
		}
		m.Revocation("skipped")
		return false
	}
	if err := oauth.Deauthorize(r.Context(), tokens.AccessToken); err != nil {
		m.Revocation("failed")
		logger.Warn().Err(err).Int64("user_id", userID).Msg("⚠️ upstream revocation failed")
		return false
	}
	m.Revocation("success")
	logger.Info().Int64("user_id", userID).Msg("revoked upstream access")
	return true
}

// MeHandler returns the session identity joined with the stored profile.
func MeHandler(store *userstore.Store, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}
		p, err := store.GetProfile(r.Context(), claims.UserID)
		if errors.Is(err, userstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User profile not found", "")
			return
		}
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Msg("me: profile lookup failed")
			writeError(w, http.StatusInternalServerError, "Failed to get user information", s.detail(err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"user": map[string]interface{}{
				"id":                claims.UserID,
				"username":          claims.Username,
				"firstname":         claims.FirstName,
				"lastname":          claims.LastName,
				"profile":           p.Profile,
				"preferences":       orEmpty(p.Preferences),
				"settings":          orEmpty(p.Settings),
				"subscription_tier": tierOrFree(p.SubscriptionTier),
				"created_at":        p.CreatedAt,
				"last_login":        p.LastLogin,
			},
		})
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func tierOrFree(tier string) string {
	if tier == "" {
		return userstore.TierFree
	}
	return tier
}
