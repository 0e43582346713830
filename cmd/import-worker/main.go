package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"race-timing-ingest/internal/config"
	"race-timing-ingest/internal/db"
	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/platform"
	"race-timing-ingest/internal/queue"
	"race-timing-ingest/internal/storage"
	"race-timing-ingest/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting import worker")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize repository
	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Initialize S3 storage
	s3Storage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
	}

	// Create workers
	importWorker := worker.NewImportWorker(cfg, repo, s3Storage, redisClient)
	reimportWorker := worker.NewReimportWorker(cfg, repo, platform.NewClient(cfg), redisClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start workers
	go func() {
		if err := importWorker.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Import worker failed")
		}
	}()
	go func() {
		if err := reimportWorker.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Reimport worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down import worker...")

	// Cancel context to stop workers
	cancel()
	importWorker.Stop()
	reimportWorker.Stop()

	log.Info().Msg("Import worker exited")
}
