package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dizzycode.xyz/dca-backtest/backtesting/batch"
	"dizzycode.xyz/dca-backtest/internal/application"
	"dizzycode.xyz/dca-backtest/internal/bootstrap"
	"dizzycode.xyz/dca-backtest/internal/handler"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/config"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// 2. Create logger
	log := logger.Must("dca-backtest-server", cfg)
	defer log.Sync()

	log.Info("Starting DCA Backtest Server",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("dataSource", cfg.Data.Source),
	)

	strategy, err := cfg.Strategy.ToEngine()
	if err != nil {
		log.Error("Invalid default strategy", err)
		os.Exit(1)
	}

	// 3. Connect optional infrastructure
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	infra, err := bootstrap.Connect(startCtx, cfg, log)
	cancel()
	if err != nil {
		log.Error("Failed to connect infrastructure", err)
		os.Exit(1)
	}
	defer infra.Close()

	// 4. Wire services and handlers
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	runner := batch.NewRunner(
		batch.WithConcurrency(cfg.Batch.Concurrency),
		batch.WithLogger(log),
		batch.WithMetrics(batch.NewMetrics(registry)),
	)
	service := application.NewBacktestService(runner, log, infra.Sinks()...)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.RouterConfig{
		Health:   handler.NewHealthHandler("dca-backtest-server", version),
		Backtest: handler.NewBacktestHandler(service, strategy, infra.Source, log),
		Stream:   handler.NewStreamHandler(strategy, infra.Source, log),
		Gatherer: registry,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	log.Info("DCA Backtest Server started successfully", zap.String("addr", srv.Addr))

	// 5. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down DCA Backtest Server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", err)
	}

	log.Info("DCA Backtest Server stopped")
}
