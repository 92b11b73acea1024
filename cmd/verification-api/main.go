package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kestrelid/age-verification-api/internal/agent"
	"github.com/kestrelid/age-verification-api/internal/auth"
	"github.com/kestrelid/age-verification-api/internal/cache"
	"github.com/kestrelid/age-verification-api/internal/config"
	"github.com/kestrelid/age-verification-api/internal/handler"
	"github.com/kestrelid/age-verification-api/internal/notify"
	"github.com/kestrelid/age-verification-api/internal/repository"
	"github.com/kestrelid/age-verification-api/internal/usecase"
	"github.com/kestrelid/age-verification-api/internal/ws"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.Load(&logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to disconnect from mongodb")
		}
	}()

	db := mongoClient.Database(cfg.Mongo.Database)

	sessionRepo := repository.NewAuthSessionMongoRepository(db)
	if err := sessionRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create mongodb indexes")
	}

	tokenAuth := auth.NewSessionTokenAuthenticator(
		cfg.Token.Issuer,
		cfg.Token.Issuer,
		cfg.Token.Secret,
	)

	attrCache := cache.NewAttributeCache(cfg.Cache.Size, cfg.Cache.TTL)
	agentClient := agent.NewClient(&cfg.Agent, &logger)
	hub := ws.NewHub(tokenAuth, &logger)
	dispatcher := notify.NewDispatcher(hub, &logger)

	verificationUsecase := usecase.NewVerificationUsecase(
		sessionRepo,
		attrCache,
		agentClient,
		dispatcher,
		tokenAuth,
		&cfg.Session,
		&logger,
	)

	verificationHandler := handler.NewVerificationHandler(verificationUsecase, &logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", hub.Attach)
	verificationHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("verification api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
}
