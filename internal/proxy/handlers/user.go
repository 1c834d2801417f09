package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/metrics"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// GetProfileHandler returns the stored profile.
func GetProfileHandler(store *userstore.Store, s Settings) http.HandlerFunc {
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
			logging.FromContext(r.Context()).Error().Err(err).Msg("get profile failed")
			writeError(w, http.StatusInternalServerError, "Failed to get user profile", s.detail(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"user": map[string]interface{}{
				"id":                claims.UserID,
				"profile":           p.Profile,
				"preferences":       orEmpty(p.Preferences),
				"settings":          orEmpty(p.Settings),
				"subscription_tier": tierOrFree(p.SubscriptionTier),
				"created_at":        p.CreatedAt,
				"updated_at":        p.UpdatedAt,
				"last_login":        p.LastLogin,
			},
		})
	}
}

// parseProfileUpdate keeps only whitelisted fields with acceptable values.
func parseProfileUpdate(body map[string]json.RawMessage) userstore.ProfileUpdate {
	var upd userstore.ProfileUpdate
	if raw, ok := body["preferences"]; ok {
		var m map[string]any
		if json.Unmarshal(raw, &m) == nil && m != nil {
			upd.Preferences = m
		}
	}
	if raw, ok := body["settings"]; ok {
		var m map[string]any
		if json.Unmarshal(raw, &m) == nil && m != nil {
			upd.Settings = m
		}
	}
	if raw, ok := body["subscription_tier"]; ok {
		var tier string
		if json.Unmarshal(raw, &tier) == nil && userstore.ValidTier(tier) {
			upd.SubscriptionTier = &tier
		}
	}
	return upd
}

// UpdateProfileHandler applies a whitelisted profile update.
func UpdateProfileHandler(store *userstore.Store, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}

		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", s.detail(err))
			return
		}
		upd := parseProfileUpdate(body)
		if upd.Empty() {
			writeError(w, http.StatusBadRequest, "No valid updates provided", "Provide preferences, settings, or subscription_tier to update")
			return
		}

		p, err := store.UpdateProfile(r.Context(), claims.UserID, upd)
		if errors.Is(err, userstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User profile not found", "")
			return
		}
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", claims.UserID).Msg("update profile failed")
			writeError(w, http.StatusInternalServerError, "Failed to update profile", s.detail(err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Profile updated successfully",
			"user": map[string]interface{}{
				"id":                claims.UserID,
				"preferences":       orEmpty(p.Preferences),
				"settings":          orEmpty(p.Settings),
				"subscription_tier": tierOrFree(p.SubscriptionTier),
				"updated_at":        p.UpdatedAt,
			},
		})
	}
}

// DeleteAccountHandler revokes upstream access (best effort, refreshing an
// expired token first), removes every local record and clears the session
// cookie.
func DeleteAccountHandler(oauth OAuthClient, tokens TokenSource, store *userstore.Store, m *metrics.Metrics, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}

		var req struct {
			ConfirmDeletion bool `json:"confirm_deletion"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.ConfirmDeletion {
			writeError(w, http.StatusBadRequest, "Deletion not confirmed",
				"Include 'confirm_deletion: true' in request body to confirm account deletion")
			return
		}

		logger := logging.FromContext(r.Context())
		revokeUpstream(r, oauth, tokens.EnsureFresh, m, claims.UserID)

		if err := store.DeleteAll(r.Context(), claims.UserID); err != nil {
			logger.Error().Err(err).Int64("user_id", claims.UserID).Msg("❌ account deletion incomplete")
			writeError(w, http.StatusInternalServerError, "Failed to delete account", s.detail(err))
			return
		}

		clearAuthCookie(w, s.Production)
		logger.Info().Int64("user_id", claims.UserID).Msg("🗑️ account deleted")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"message":    "Account deleted successfully",
			"deleted_at": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
