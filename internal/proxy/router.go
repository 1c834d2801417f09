// Package proxy assembles the HTTP surface: gates, handlers, health and
// metrics on a chi router.
package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pysugar/coach-connect/internal/auth/strava"
	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/metrics"
	"github.com/pysugar/coach-connect/internal/proxy/handlers"
	"github.com/pysugar/coach-connect/internal/proxy/middleware"
	"github.com/pysugar/coach-connect/internal/secrets"
	"github.com/pysugar/coach-connect/internal/session"
	"github.com/pysugar/coach-connect/internal/userstore"
)

// Deps are the collaborators built in main.
type Deps struct {
	Store     *userstore.Store
	Tokens    handlers.TokenSource
	OAuth     handlers.OAuthClient
	API       handlers.ActivityAPI
	Sessions  *session.Service
	Secrets   secrets.Provider
	Metrics   *metrics.Metrics
	Endpoints strava.Endpoints
	Scopes    []string
	Settings  handlers.Settings
}

func NewRouter(d Deps) http.Handler {
	s := d.Settings
	requireSession := middleware.RequireSession(d.Sessions, d.Metrics)
	optionalSession := middleware.OptionalSession(d.Sessions, d.Metrics)

	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(logging.AccessLog)
	r.Use(chimiddleware.Recoverer)

	r.NotFound(handlers.NotFoundHandler())
	r.MethodNotAllowed(handlers.NotFoundHandler())

	r.Get("/health", handlers.HealthHandler())
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", strava.HandleLogin(d.Secrets, d.Endpoints, d.Scopes, s.Production))
		r.Get("/exchange_token", handlers.ExchangeTokenHandler(d.OAuth, d.Store, d.Sessions, d.Secrets, s))
		r.With(optionalSession).Post("/logout", handlers.LogoutHandler(d.OAuth, d.Store, d.Metrics, s))
		r.With(requireSession).Get("/me", handlers.MeHandler(d.Store, s))
		r.With(requireSession).Post("/refresh", handlers.RefreshSessionHandler(d.Store, d.Sessions, s))
	})

	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/activities", handlers.ActivitiesHandler(d.Tokens, d.API, s))
		r.Get("/athletes/stats", handlers.AthleteStatsHandler(d.Tokens, d.API, s))

		r.Route("/user", func(r chi.Router) {
			r.Get("/profile", handlers.GetProfileHandler(d.Store, s))
			r.Put("/profile", handlers.UpdateProfileHandler(d.Store, s))
			r.Delete("/account", handlers.DeleteAccountHandler(d.OAuth, d.Tokens, d.Store, d.Metrics, s))

			r.Post("/workouts", handlers.CreateWorkoutHandler(d.Store, s))
			r.Get("/workouts", handlers.ListWorkoutsHandler(d.Store, s))
			r.Delete("/workouts/{workoutID}", handlers.DeleteWorkoutHandler(d.Store, s))
		})
	})

	return r
}
