package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pysugar/coach-connect/internal/auth/strava"
	"github.com/pysugar/coach-connect/internal/auth/token"
	"github.com/pysugar/coach-connect/internal/config"
	"github.com/pysugar/coach-connect/internal/db"
	"github.com/pysugar/coach-connect/internal/db/redisrepo"
	"github.com/pysugar/coach-connect/internal/logging"
	"github.com/pysugar/coach-connect/internal/metrics"
	"github.com/pysugar/coach-connect/internal/proxy"
	"github.com/pysugar/coach-connect/internal/proxy/handlers"
	"github.com/pysugar/coach-connect/internal/secrets"
	"github.com/pysugar/coach-connect/internal/session"
	"github.com/pysugar/coach-connect/internal/upstream"
	"github.com/pysugar/coach-connect/internal/userstore"
	"github.com/pysugar/coach-connect/internal/version"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	secretProvider, err := newSecretsProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize secrets provider")
	}

	// The legacy token table always lives in SQLite.
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	var profiles userstore.ProfileRepo = db.NewProfileRepo(database)
	if cfg.Store.Backend == config.StoreBackendRedis {
		rr, err := redisrepo.New(ctx, cfg.Store.RedisURL, cfg.Store.RedisKeyPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rr.Close()
		profiles = rr
	}

	store := userstore.New(profiles, db.NewLegacyTokenRepo(database), userstore.WithMetrics(m))

	client := upstream.NewClient(upstream.Config{
		AuthURL:        cfg.Upstream.AuthURL,
		TokenURL:       cfg.Upstream.TokenURL,
		DeauthorizeURL: cfg.Upstream.DeauthorizeURL,
		APIBaseURL:     cfg.Upstream.APIBaseURL,
		Timeout:        cfg.UpstreamTimeout(),
	}, secretProvider)

	router := proxy.NewRouter(proxy.Deps{
		Store:    store,
		Tokens:   token.NewManager(store, client, m, token.WithRefreshTimeout(cfg.UpstreamTimeout())),
		OAuth:    client,
		API:      client,
		Sessions: session.NewService(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.Audience, nil),
		Secrets:  secretProvider,
		Metrics:  m,
		Endpoints: strava.Endpoints{
			AuthURL:  cfg.Upstream.AuthURL,
			TokenURL: cfg.Upstream.TokenURL,
		},
		Scopes:   cfg.Upstream.Scopes,
		Settings: handlers.Settings{Production: cfg.IsProduction()},
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("version", version.String()).
			Str("env", cfg.Env).
			Str("store", cfg.Store.Backend).
			Msgf("🚀 coach-connect starting on http://%s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// newSecretsProvider picks the OAuth client secret source. The result is
// cached after the first successful read.
func newSecretsProvider(ctx context.Context, cfg *config.Config) (secrets.Provider, error) {
	if cfg.Secrets.Source == config.SecretsSourceAWS {
		p, err := secrets.NewAWSProviderFromConfig(ctx, cfg.Secrets.AWSRegion, cfg.Secrets.AWSSecret)
		if err != nil {
			return nil, err
		}
		return secrets.NewCached(p), nil
	}
	return secrets.NewCached(secrets.EnvProvider{Getenv: os.Getenv}), nil
}
