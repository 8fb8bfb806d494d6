package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/media-push/internal/config"
	"github.com/jwalitptl/media-push/internal/worker"
	"github.com/jwalitptl/media-push/pkg/logger"
	"github.com/jwalitptl/media-push/pkg/messaging/redis"
	"github.com/jwalitptl/media-push/pkg/metrics"
)

func setupHealthCheck(port int, broker *redis.RedisBroker, registry *prometheus.Registry, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := broker.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	}).WithFields(map[string]interface{}{"component": "report-consumer"})
	log.Logger = appLogger.ZL

	if cfg.Redis.URL == "" {
		appLogger.Fatal(errors.New("redis.url is empty"), "Report consumer needs a broker")
	}

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics("mediapush_worker", registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger, appMetrics)
	if err != nil {
		appLogger.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	health := setupHealthCheck(cfg.Worker.HealthPort, broker, registry, appLogger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Shutting down...")
		cancel()
	}()

	consumer := worker.NewReportConsumer(broker, appLogger, appMetrics)
	if err := consumer.Start(ctx); err != nil {
		appLogger.Error(err, "Report consumer stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = health.Shutdown(shutdownCtx)
}
