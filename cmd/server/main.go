package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/eldtechnologies/chatrelay/internal/api"
	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/auth"
	"github.com/eldtechnologies/chatrelay/internal/config"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
	"github.com/eldtechnologies/chatrelay/internal/messagelog"
	"github.com/eldtechnologies/chatrelay/internal/presence"
	"github.com/eldtechnologies/chatrelay/internal/ratelimit"
	"github.com/eldtechnologies/chatrelay/internal/receipts"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisStore, err := store.NewRedisStore(ctx, redisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisStore.Close()
	logger.Info().Msg("connected to Redis")

	accounts, archive := openAccountSource(ctx, cfg, logger)
	if accounts != nil {
		defer accounts.Close()
	}

	dir := presence.NewDirectory(redisStore, logger.With().Str("component", "presence").Logger())
	if accounts != nil {
		users, rooms, err := dir.Sync(ctx, accounts)
		if err != nil {
			logger.Fatal().Err(err).Msg("roster sync failed")
		}
		logger.Info().Int("users", users).Int("rooms", rooms).Msg("roster synced from account database")
	}

	verifier := newVerifier(cfg, logger)

	rel := relay.New(
		verifier,
		dir,
		messagelog.New(redisStore, logger.With().Str("component", "messagelog").Logger()),
		receipts.NewTracker(redisStore),
		logger.With().Str("component", "relay").Logger(),
		relay.Options{
			HistorySize:     cfg.HistorySize,
			RoomHistorySize: cfg.RoomHistorySize,
			EventRate:       rate.Limit(cfg.EventRate),
			EventBurst:      cfg.EventBurst,
		},
	)

	router := api.NewRouter(api.RouterConfig{
		Logger: logger,
		Handlers: handlers.Deps{
			Redis:    redisStore,
			Presence: dir,
			Accounts: accounts,
			Archive:  archive,
			Sessions: rel,
			Logger:   logger,
		},
		Relay:    rel,
		Verifier: verifier,
		Limiter:  ratelimit.New(redisStore),
		Blocks:   redisStore,
		RateLimits: middleware.RateLimiterConfig{
			MessageLimit:     cfg.MessageRateLimit,
			MessageWindow:    cfg.MessageRateWindow,
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		TrustProxy:     cfg.TrustProxy,
	})

	// Write timeouts do not apply to upgraded websocket connections; the
	// relay manages its own deadlines.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chatrelay server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Hijacked websocket connections outlive srv.Shutdown; drain them so
	// every user is marked offline before exit.
	if err := rel.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("relay sessions did not drain")
	}

	logger.Info().Msg("server stopped")
}

// openAccountSource connects to PostgreSQL when DATABASE_URL is set, or to
// SQLite when SQLITE_PATH is set. Without either the roster lives in Redis
// only.
func openAccountSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.AccountSource, store.MessageArchive) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg, pg
	case cfg.SQLitePath != "":
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite account database")
		return lite, lite
	}
	logger.Warn().Msg("no account database configured; roster is read from Redis only")
	return nil, nil
}

func newVerifier(cfg *config.Config, logger zerolog.Logger) auth.Verifier {
	if cfg.JWTPublicKey != "" {
		pub, err := auth.ValidatePublicKey(cfg.JWTPublicKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid JWT_PUBLIC_KEY")
		}
		return auth.NewEd25519Verifier(pub)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn().Msg("JWT_SECRET not set; using an insecure development secret")
		secret = "chatrelay-dev-secret"
	}
	return auth.NewHMACVerifier(secret)
}
