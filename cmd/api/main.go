package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"contactbook/internal/cache"
	"contactbook/internal/config"
	"contactbook/internal/database"
	"contactbook/internal/handlers"
	"contactbook/internal/identity"
	"contactbook/internal/jobs"
	"contactbook/internal/log"
	"contactbook/internal/middleware"
	"contactbook/internal/queue"
	"contactbook/internal/repository"
	"contactbook/internal/security"
	"contactbook/internal/server"
	"contactbook/internal/service"
	"contactbook/internal/session"
	"contactbook/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, "contactbook-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:          cfg.Security.JWTSecret,
		AccessTTL:       cfg.Security.JWTAccessTTL,
		VerificationTTL: cfg.Security.JWTVerificationTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token service")
	}
	hasher, err := security.NewHasher(cfg.Security.HashAlgorithm, cfg.Security.BcryptCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init password hasher")
	}

	users := repository.NewUserRepository(dbPool)
	contacts := repository.NewContactRepository(dbPool)

	blacklist := session.NewStore(redisClient, session.FailurePolicy{
		Mode:  session.FailureMode(cfg.Security.BlacklistMode),
		Grace: cfg.Security.BlacklistGrace,
	}, logger)
	resolver := identity.NewResolver(tokens, blacklist, users, cfg.Security.IdentityCacheTTL, logger)
	outbox := queue.NewProducer(redisClient, cfg.Worker.Stream)

	handlerSet := handlers.NewHandlerSet(handlers.Dependencies{
		Log:      logger,
		Config:   cfg,
		Identity: resolver,
		Limiter:  middleware.NewRateLimiter(redisClient, cfg.RateLimit.KeyPrefix, logger),
		Auth:     service.NewAuthService(users, hasher, tokens, resolver, outbox, logger),
		Avatars:  service.NewAvatarService(objectStore, users, cfg.Storage.MaxAvatarBytes, logger),
		Contacts: contacts,
		Roles:    users,
		Checks: map[string]handlers.HealthCheck{
			"database": dbPool.Ping,
			"cache":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(outbox, cfg.Jobs.BirthdayDigestSpec, logger)
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("scheduler start failed")
			scheduler = nil
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
