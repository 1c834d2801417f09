package handlers

import (
	"net/http"
	"strconv"

	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/upstream"
)

const (
	defaultPerPage = 200
	maxPerPage     = 200
)

func parseActivityQuery(r *http.Request) (upstream.ActivityQuery, string) {
	q := upstream.ActivityQuery{PerPage: defaultPerPage}
	values := r.URL.Query()

	if v := values.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPerPage {
			return q, "per_page must be an integer between 1 and 200"
		}
		q.PerPage = n
	}
	for name, dst := range map[string]*int64{"before": &q.Before, "after": &q.After} {
		v := values.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return q, name + " must be an epoch timestamp in seconds"
		}
		*dst = n
	}
	return q, ""
}

// ActivitiesHandler lists the athlete's upstream activities.
func ActivitiesHandler(tokens TokenSource, api ActivityAPI, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}
		query, invalid := parseActivityQuery(r)
		if invalid != "" {
			writeError(w, http.StatusBadRequest, "Invalid query parameters", invalid)
			return
		}

		t, ok := freshToken(w, r, tokens, s, claims.UserID)
		if !ok {
			return
		}

		activities, err := api.ListActivities(r.Context(), t.AccessToken, query)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", claims.UserID).Msg("activities fetch failed")
			writeError(w, http.StatusInternalServerError, "Failed to fetch activities", s.upstreamMessage(err))
			return
		}

		logging.FromContext(r.Context()).Debug().Int64("user_id", claims.UserID).Int("count", len(activities)).Msg("activities fetched")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"count":      len(activities),
			"activities": activities,
		})
	}
}

// AthleteStatsHandler returns the athlete's upstream totals.
func AthleteStatsHandler(tokens TokenSource, api ActivityAPI, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}
		t, ok := freshToken(w, r, tokens, s, claims.UserID)
		if !ok {
			return
		}

		stats, err := api.AthleteStats(r.Context(), t.AccessToken, claims.UserID)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", claims.UserID).Msg("stats fetch failed")
			writeError(w, http.StatusInternalServerError, "Failed to fetch athlete stats", s.upstreamMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"stats":   stats,
		})
	}
}
