package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httphandlers "synthnet/internal/handlers/http"
	"synthnet/internal/infrastructure/middleware"
	"synthnet/internal/infrastructure/monitoring"
	"synthnet/internal/infrastructure/reliability"
	repositories "synthnet/internal/infrastructure/repositories"
	signalserver "synthnet/internal/infrastructure/signal"
	"synthnet/pkg/circuitbreaker"
	"synthnet/pkg/config"
	"synthnet/pkg/logger"
	"synthnet/pkg/retry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/synthnet/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Backing stores: Redis when enabled, in-memory otherwise
	stores, err := repositories.NewStores(cfg, log)
	if err != nil {
		log.Fatalw("failed to create stores", "error", err)
	}
	defer stores.Close()

	// Wrap the mailbox so transient store failures never surface to
	// the relay path
	mailbox := reliability.NewMailboxWrapper(
		stores.Mailbox,
		retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
			Jitter:       true,
		},
		circuitbreaker.Config{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			Timeout:             10 * time.Second,
			MaxRequestsHalfOpen: 1,
		},
		log,
	)

	relay := signalserver.NewRelayServer(mailbox, stores.Controller, log)
	relay.SetPingInterval(cfg.Signal.PingInterval)
	relay.SetReadTimeout(cfg.Signal.ReadTimeout)
	if cfg.RateLimiting.Enabled {
		relay.SetRateLimit(cfg.RateLimiting.MessagesPerSecond, cfg.RateLimiting.Burst)
	}
	if cfg.Monitoring.PrometheusEnabled {
		relay.SetMetrics(monitoring.NewPrometheusCollector())
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	router.GET("/ws", gin.WrapF(relay.HandleWebSocket))

	relayHandler := httphandlers.NewRelayHandler(cfg, relay, stores)
	relayHandler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Signal.Address,
		Handler:      router,
		ReadTimeout:  cfg.Signal.ReadTimeout,
		WriteTimeout: cfg.Signal.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting signaling relay on %s", cfg.Signal.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
	log.Info("signaling relay stopped")
}
