package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/amirhf/giftreco/services/api-go/api"
	"github.com/amirhf/giftreco/services/api-go/auth"
	"github.com/amirhf/giftreco/services/api-go/config"
	"github.com/amirhf/giftreco/services/api-go/enrich"
	"github.com/amirhf/giftreco/services/api-go/logging"
	"github.com/amirhf/giftreco/services/api-go/reco"
	"github.com/amirhf/giftreco/services/api-go/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if cfg.Database.MigrateOnStart {
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			logging.Fatal().Err(err).Msg("failed to migrate database")
		}
		logging.Info().Msg("database migrations applied")
	}

	store, err := storage.Shared(cfg.Database.URL)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logging.Warn().Err(err).Msg("database not reachable at startup")
	}
	cancelPing()

	if cfg.Reco.BaseURL == "" {
		logging.Warn().Msg("RECO_BASE_URL is not set, POST /recommendations will fail")
	}
	engine := reco.NewClient(cfg.Reco.BaseURL, cfg.Reco.Timeout)
	verifier := auth.NewVerifier(auth.Options{
		SupabaseURL: cfg.Supabase.URL,
		AnonKey:     cfg.Supabase.AnonKey,
		JWTSecret:   cfg.Supabase.JWTSecret,
		Timeout:     10 * time.Second,
	})

	handler := api.NewHandler(store, store, engine, enrich.New(store))
	router := api.NewRouter(api.RouterConfig{
		Handler:           handler,
		Verifier:          verifier,
		Roles:             store,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
	})

	port := strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().Str("port", port).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}
	logging.Info().Msg("server stopped")
}
