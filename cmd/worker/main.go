package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"contactbook/internal/cache"
	"contactbook/internal/config"
	"contactbook/internal/database"
	"contactbook/internal/log"
	"contactbook/internal/mail"
	"contactbook/internal/queue"
	"contactbook/internal/repository"
	"contactbook/internal/security"
	"contactbook/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("process", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "contactbook-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:          cfg.Security.JWTSecret,
		AccessTTL:       cfg.Security.JWTAccessTTL,
		VerificationTTL: cfg.Security.JWTVerificationTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token service")
	}

	processor := tasks.NewProcessor(
		tokens,
		repository.NewUserRepository(dbPool),
		repository.NewContactRepository(dbPool),
		mail.NewMailer(cfg.Mail, logger),
		tasks.Options{
			BaseURL:         cfg.Mail.BaseURL,
			VerificationTTL: cfg.Security.JWTVerificationTTL,
			DigestPageSize:  cfg.Worker.DigestPageSize,
		},
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	logger.Info().Str("stream", cfg.Worker.Stream).Str("group", cfg.Worker.Group).Msg("worker started")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited")
}
