/**
 * @description
 * This is the main entry point for the DinCash rewards service. It loads configuration,
 * connects to PostgreSQL, Redis, and RabbitMQ, wires the ledger service, and starts the
 * HTTP server, the identity event consumer, and the reconciliation scheduler.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivanValieri/din-cash/internal/api"
	"github.com/ivanValieri/din-cash/internal/app"
	"github.com/ivanValieri/din-cash/internal/config"
	"github.com/ivanValieri/din-cash/internal/store"
	"github.com/ivanValieri/din-cash/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AuthJWTSecret == "" && cfg.AuthJWKSURL == "" {
		logger.Error("no token verification configured", "env", "AUTH_JWT_SECRET or AUTH_JWKS_URL")
		os.Exit(1)
	}
	if cfg.InternalAPIKey == "" {
		logger.Warn("internal api key not configured; internal routes disabled", "env", "INTERNAL_API_KEY")
	}

	ctx := context.Background()
	logger.Info("starting rewards service", "port", cfg.ServerPort)

	repository, closeStore := openRepository(ctx, cfg, logger)
	defer closeStore()

	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	} else {
		defer producer.Close()
		publisher = producer
		logger.Info("rabbitmq producer connected")
	}

	var limiter app.RateLimiter
	if redisClient := openRedis(ctx, cfg, logger); redisClient != nil {
		defer redisClient.Close()
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	rewardsService := app.NewService(repository, publisher, limiter, logger, app.Options{
		MinWithdrawal:            cfg.MinWithdrawalCents,
		AdminContacts:            cfg.AdminContacts(),
		SubmissionLimitPerMinute: cfg.SubmissionRateLimitPerMinute,
		WithdrawalLimitPerMinute: cfg.WithdrawalRateLimitPerMinute,
	})

	if cfg.SeedDefaultMissions {
		seeded, err := rewardsService.SeedDefaultMissions(ctx)
		if err != nil {
			logger.Error("failed to seed default missions", "error", err)
		} else if seeded > 0 {
			logger.Info("seeded default missions", "count", seeded)
		}
	}

	if cfg.RabbitMQURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq consumer unavailable; identity events will not be consumed", "error", err)
		} else {
			defer consumer.Close()
			identityConsumer := app.NewIdentityEventConsumer(rewardsService)
			bindings := map[string]func([]byte) bool{
				app.RoutingKeyUserCreated: identityConsumer.HandleUserCreated,
			}
			if err := consumer.ConsumeWithBindings(app.EventsExchange, cfg.IdentityEventQueue, bindings); err != nil {
				logger.Error("identity consumer start failed", "error", err)
				os.Exit(1)
			}
		}
	}

	var scheduler *app.Scheduler
	if cfg.ReconcileSchedule != "" {
		scheduler = app.NewScheduler(rewardsService, logger, cfg.ReconcileSchedule)
		if err := scheduler.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	handler := api.NewHandler(rewardsService, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		Auth: api.AuthConfig{
			JWTSecret:        cfg.AuthJWTSecret,
			JWKSURL:          cfg.AuthJWKSURL,
			ExpectedAudience: cfg.AuthAudience,
			ExpectedIssuer:   cfg.AuthIssuer,
		},
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.CORSAllowedOrigins(),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	logger.Info("shutdown complete")
}

// openRepository connects to PostgreSQL, or falls back to the in-memory store when no
// database is configured.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		return store.NewMemoryRepository(), func() {}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	if cfg.AutoMigrate {
		if err := store.ApplySchema(ctx, dbpool); err != nil {
			dbpool.Close()
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database schema applied")
	}

	return store.NewPostgresRepository(dbpool), dbpool.Close
}

// openRedis returns a connected client, or nil when rate limiting should be disabled.
func openRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) *redis.Client {
	if cfg.SubmissionRateLimitPerMinute <= 0 && cfg.WithdrawalRateLimitPerMinute <= 0 {
		return nil
	}
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; rate limiting disabled", "env", "REDIS_URL")
		return nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; rate limiting disabled", "error", err)
		return nil
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; rate limiting disabled", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}
