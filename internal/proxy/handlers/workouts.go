package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/userstore"
)

type createWorkoutRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Difficulty  string `json:"difficulty"`
	Count       int    `json:"count"`
	Date        string `json:"date"`
}

// parseWorkoutDate accepts RFC 3339 or a plain calendar date.
func parseWorkoutDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

// CreateWorkoutHandler stores a custom workout.
func CreateWorkoutHandler(store *userstore.Store, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}

		var req createWorkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid workout data", "Request body must be a JSON workout")
			return
		}

		in := userstore.NewWorkout{
			Name:        req.Name,
			Description: req.Description,
			Duration:    req.Duration,
			Difficulty:  req.Difficulty,
			Count:       req.Count,
		}
		if req.Date != "" {
			d, err := parseWorkoutDate(req.Date)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid workout data", "Date must be a valid ISO date string")
				return
			}
			in.WorkoutDate = d
		}

		workout, err := store.CreateWorkout(r.Context(), claims.UserID, in)
		var verr *userstore.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "Invalid workout data", verr.Message)
			return
		}
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", claims.UserID).Msg("save workout failed")
			writeError(w, http.StatusInternalServerError, "Failed to save workout", s.detail(err))
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Workout created successfully",
			"workout": workout,
		})
	}
}

// ListWorkoutsHandler returns the user's workouts, newest first.
func ListWorkoutsHandler(store *userstore.Store, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}
		workouts, err := store.ListWorkouts(r.Context(), claims.UserID)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", claims.UserID).Msg("list workouts failed")
			writeError(w, http.StatusInternalServerError, "Failed to fetch workouts", s.detail(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"count":    len(workouts),
			"workouts": workouts,
		})
	}
}

// DeleteWorkoutHandler removes one workout.
func DeleteWorkoutHandler(store *userstore.Store, s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := mustIdentity(w, r)
		if !ok {
			return
		}
		workoutID := chi.URLParam(r, "workoutID")
		if workoutID == "" {
			writeError(w, http.StatusBadRequest, "Invalid request", "Workout ID is required")
			return
		}

		err := store.DeleteWorkout(r.Context(), claims.UserID, workoutID)
		if errors.Is(err, userstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Workout not found", "Unable to find or delete the specified workout")
			return
		}
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Int64("user_id", claims.UserID).Msg("delete workout failed")
			writeError(w, http.StatusInternalServerError, "Failed to delete workout", s.detail(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":            true,
			"message":            "Workout deleted successfully",
			"deleted_workout_id": workoutID,
		})
	}
}
