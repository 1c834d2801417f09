package handlers

import (
	"errors"
	"net/http"

	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/session"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// RefreshSessionHandler re-issues the session credential for the current
// identity. The upstream token is not touched.
func RefreshSessionHandler(store *userstore.Store, sessions SessionIssuer, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}

		p, err := store.GetProfile(r.Context(), claims.UserID)
		if errors.Is(err, userstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found", "")
			return
		}
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", claims.UserID).Msg("refresh: profile lookup failed")
			writeError(w, http.StatusInternalServerError, "Token refresh failed", s.detail(err))
			return
		}

		signed, err := sessions.Issue(identityFromProfile(p), claims.Scope)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Msg("refresh: signing failed")
			writeError(w, http.StatusInternalServerError, "Token refresh failed", s.detail(err))
			return
		}

		setAuthCookie(w, signed, s.Production)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"message":    "Token refreshed successfully",
			"expires_in": int(session.TTL.Seconds()),
		})
	}
}

func identityFromProfile(p *userstore.Profile) session.Identity {
	return identityFromAthlete(p.UserID, p.Profile)
}

func identityFromAthlete(userID int64, a userstore.Athlete) session.Identity {
	return session.Identity{
		UserID:    userID,
		Username:  a.Username,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}
