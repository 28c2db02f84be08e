package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/config"
	"github.com/breathe-dev/breathe/internal/handlers"
	"github.com/breathe-dev/breathe/internal/ingest"
	"github.com/breathe-dev/breathe/internal/middleware"
	"github.com/breathe-dev/breathe/internal/router"
	"github.com/breathe-dev/breathe/internal/scheduler"
	"github.com/breathe-dev/breathe/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()

			if err != nil {
				return err
			}

			defer func() { _ = logger.Sync() }()

			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := openStore(cfg, logger)

	if err != nil {
		return err
	}

	defer func() { _ = store.Close() }()

	if err := store.Migrate(); err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenExpiry)

	if err != nil {
		return err
	}

	notifier := services.NewMailpitNotifier(cfg.MailpitURL(), cfg.MailFrom, cfg.MailFromName, cfg.MailTimeout, logger)
	hub := handlers.NewHub(cfg.AllowedOrigins, logger)

	opts := []services.HistoryOption{services.WithBroadcaster(hub)}

	if cfg.InfluxURL != "" {
		sink, err := services.NewInfluxSink(ctx, cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)

		if err != nil {
			logger.Warn("influx unavailable, readings will not be mirrored", zap.Error(err))
		} else {
			defer sink.Close()
			opts = append(opts, services.WithSink(sink))
			logger.Info("mirroring readings to influx", zap.String("bucket", cfg.InfluxBucket))
		}
	}

	history := services.NewHistoryService(store, notifier, cfg.AlertThreshold, cfg.MailTimeout, logger, opts...)

	limiter := newLimiter(ctx, cfg, logger)

	if cfg.MQTTBroker != "" {
		ingestor := ingest.NewIngestor(history, cfg.MQTTTopicPrefix, logger)
		subscriber, err := ingest.Subscribe(ingest.SubscriberConfig{Broker: cfg.MQTTBroker, ClientID: cfg.MQTTClientID}, ingestor, logger)

		if err != nil {
			logger.Warn("mqtt ingestion disabled", zap.Error(err))
		} else {
			defer subscriber.Close()
		}
	}

	retrier := scheduler.NewAlertRetrier(store, notifier, cfg.AlertRetryInterval, cfg.AlertMaxAttempts, cfg.MailTimeout, logger)
	retrier.Start(ctx)
	defer retrier.Stop()

	gin.SetMode(gin.ReleaseMode)

	engine := router.New(router.Dependencies{
		Handler: handlers.New(handlers.Dependencies{
			Store:        store,
			Tokens:       tokens,
			History:      history,
			Retrier:      retrier,
			Logger:       logger,
			CookieDomain: cfg.CookieDomain,
		}),
		Hub:            hub,
		Store:          store,
		Tokens:         tokens,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-errCh
}

// newLimiter prefers Redis so limits hold across replicas.
func newLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) middleware.Limiter {
	if cfg.RedisAddr == "" {
		return middleware.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, rate limiting per process", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return middleware.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	return middleware.NewRedisLimiter(client, cfg.RateLimit, cfg.RateLimitWindow)
}
