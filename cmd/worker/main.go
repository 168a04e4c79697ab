package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"phoneshop/internal/app"
	"phoneshop/internal/config"
	"phoneshop/internal/database"
	"phoneshop/internal/notify"
	"phoneshop/internal/worker"
	"phoneshop/internal/worker/processors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := app.NewLogger(cfg)
	defer logger.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the worker")
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseURL, cfg.LogLevel == "debug")
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	notifier, err := app.NewNotifier(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to set up notifier: %v", err)
	}

	// Initialize worker
	processor := processors.NewEventProcessor(notify.NewFormatter(cfg.ShopName, cfg.Location()), notifier, db, logger)
	w := worker.New(cfg, logger, processor)

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting worker on topic %s...", cfg.KafkaTopic)
	if err := w.Start(ctx); err != nil {
		logger.Error("Worker stopped: %v", err)
	}

	logger.Info("Shutting down worker...")
	if err := w.Stop(); err != nil {
		logger.Error("Failed to close reader: %v", err)
	}
}
