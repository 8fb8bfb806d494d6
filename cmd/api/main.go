package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/media-push/internal/config"
	"github.com/jwalitptl/media-push/internal/handler"
	deviceHandler "github.com/jwalitptl/media-push/internal/handler/device"
	notificationHandler "github.com/jwalitptl/media-push/internal/handler/notification"
	"github.com/jwalitptl/media-push/internal/repository/postgres"
	"github.com/jwalitptl/media-push/internal/router"
	deviceService "github.com/jwalitptl/media-push/internal/service/device"
	notificationService "github.com/jwalitptl/media-push/internal/service/notification"
	"github.com/jwalitptl/media-push/pkg/auth"
	"github.com/jwalitptl/media-push/pkg/logger"
	"github.com/jwalitptl/media-push/pkg/messaging"
	"github.com/jwalitptl/media-push/pkg/messaging/redis"
	"github.com/jwalitptl/media-push/pkg/metrics"
	"github.com/jwalitptl/media-push/pkg/push"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})
	log.Logger = appLogger.ZL

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics("mediapush", registry)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	base := postgres.NewBaseRepository(db, appMetrics)
	deviceRepo := postgres.NewDeviceRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)

	checks := map[string]handler.Check{
		"database": db.PingContext,
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.Redis.URL != "" {
		broker, err := redis.NewRedisBroker(context.Background(), redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, appLogger, appMetrics)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
		publisher = broker
		checks["redis"] = broker.Ping
	} else {
		appLogger.Warn("redis url not set, dispatch reports will not be published")
	}

	tokenBroker := auth.NewBroker(cfg.Credential, auth.BrokerConfig{
		ExpiryMargin: cfg.Push.ExpiryMargin,
		HTTPTimeout:  cfg.Push.HTTPTimeout,
	}, appLogger, appMetrics)

	dispatcher := push.NewDispatcher(
		tokenBroker,
		push.NewFCMClient(cfg.Credential.ProjectID, cfg.Push.SendURL, cfg.Push.SendTimeout),
		push.DispatcherConfig{
			MaxConcurrency: cfg.Push.MaxConcurrency,
			SendTimeout:    cfg.Push.SendTimeout,
		},
		appLogger,
		appMetrics,
	)

	notificationSvc := notificationService.NewService(
		notificationRepo,
		deviceRepo,
		dispatcher,
		publisher,
		notificationService.Config{LinkConcurrency: cfg.Push.LinkConcurrency},
		appLogger,
		appMetrics,
	)
	deviceSvc := deviceService.NewService(deviceRepo, notificationRepo, deviceService.CacheConfig{
		TTL:     cfg.DeviceCache.TTL,
		Cleanup: cfg.DeviceCache.Cleanup,
	}, appLogger)

	var limit rate.Limit
	if cfg.RateLimit.Enabled {
		limit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}

	r := router.NewRouter(
		handler.NewHandler(checks, registry),
		deviceHandler.NewHandler(deviceSvc),
		notificationHandler.NewHandler(notificationSvc),
		router.RouterConfig{
			RateLimit:      limit,
			RateBurst:      cfg.RateLimit.Burst,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			Metrics:        appMetrics,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("project", cfg.Credential.ProjectID).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
