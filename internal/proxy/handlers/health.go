package handlers

import (
	"net/http"

	"github.com/pysugar/coach-connect/internal/version"
)

// HealthHandler reports liveness and the build version.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  "ok",
			"version": version.Version,
			"commit":  version.Commit,
		})
	}
}

// NotFoundHandler answers unknown routes with the JSON envelope.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", "Route "+r.Method+" "+r.URL.Path+" not found")
	}
}
