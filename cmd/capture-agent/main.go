package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"race-timing-ingest/internal/api"
	"race-timing-ingest/internal/capture"
	"race-timing-ingest/internal/config"
	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/model"
	"race-timing-ingest/internal/platform"
	"race-timing-ingest/internal/queue"

	"github.com/gin-gonic/gin"
)

type captureRequest struct {
	BibNumber int    `json:"bib_number" binding:"required"`
	LapNumber int    `json:"lap_number"`
	Notes     string `json:"notes"`
}

type statusRequest struct {
	BibNumber  int    `json:"bib_number" binding:"required"`
	StatusCode string `json:"status_code" binding:"required"`
	Notes      string `json:"notes"`
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().
		Str("version", cfg.App.Version).
		Str("device_id", cfg.Capture.DeviceID).
		Msg("Starting capture agent")

	// Initialize platform client
	client := platform.NewClient(cfg)

	// Durable local queues survive restarts between syncs. Handhelds queue to
	// a local file; kiosks next to the venue server queue to its redis.
	var readingQueue, statusQueue capture.QueueStore
	if cfg.Capture.QueueDir != "" {
		if err := os.MkdirAll(cfg.Capture.QueueDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create queue directory")
		}
		readingQueue = capture.NewFileQueueStore(filepath.Join(cfg.Capture.QueueDir, "readings.jsonl"))
		statusQueue = capture.NewFileQueueStore(filepath.Join(cfg.Capture.QueueDir, "statuses.jsonl"))
	} else {
		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		prefix := fmt.Sprintf("capture:%s:", cfg.Capture.DeviceID)
		readingQueue = capture.NewRedisQueueStore(redisClient.Client(), prefix+"readings")
		statusQueue = capture.NewRedisQueueStore(redisClient.Client(), prefix+"statuses")
	}

	var timingPointID *int64
	if cfg.Capture.TimingPointID > 0 {
		id := cfg.Capture.TimingPointID
		timingPointID = &id
	}

	session := capture.NewSession(capture.SessionOptions{
		DeviceID:      cfg.Capture.DeviceID,
		RaceID:        cfg.Capture.RaceID,
		TimingPointID: timingPointID,
		SendTimeout:   cfg.Capture.CaptureTimeout,
	}, readingQueue, statusQueue, client)

	// Pull the chip index once at startup so operators can see the roster
	// even when the link drops later.
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	chipIndex, err := client.PullChipIndex(startCtx, cfg.Capture.RaceID)
	startCancel()
	if err != nil {
		log.Warn().Err(err).Msg("Could not pull chip index, continuing without roster")
	} else {
		log.Info().Int("entries", len(chipIndex)).Msg("Pulled chip index")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background sync loop: whenever the platform is reachable, drain the
	// pending queues.
	go func() {
		interval := cfg.Capture.ProbeInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				readings, statuses, err := session.PendingCounts(ctx)
				if err != nil || readings+statuses == 0 {
					continue
				}
				if !client.Online(ctx) {
					continue
				}
				result, err := session.Flush(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("Background sync failed")
					continue
				}
				log.Info().
					Int("readings", result.ReadingsSynced).
					Int("status_events", result.StatusEventsSynced).
					Msg("Background sync completed")
			}
		}
	}()

	// Setup local HTTP surface for the operator UI
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	router.POST("/capture", func(c *gin.Context) {
		var req captureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lap := req.LapNumber
		if lap <= 0 {
			lap = 1
		}
		entry, err := session.CaptureReading(c.Request.Context(), req.BibNumber, lap, req.Notes)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, entry)
	})

	router.POST("/status", func(c *gin.Context) {
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		code := model.StatusCode(req.StatusCode)
		switch code {
		case model.StatusDNF, model.StatusDNS, model.StatusDSQ, model.StatusWithdrawn:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status code: %s", req.StatusCode)})
			return
		}
		entry, err := session.CaptureStatus(c.Request.Context(), req.BibNumber, code, req.Notes)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, entry)
	})

	router.GET("/recent", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"entries": session.Recent()})
	})

	router.GET("/pending", func(c *gin.Context) {
		readings, statuses, err := session.PendingCounts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"readings":      readings,
			"status_events": statuses,
			"online":        client.Online(c.Request.Context()),
		})
	})

	router.POST("/sync", func(c *gin.Context) {
		result, err := session.Flush(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Capture.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Capture.Port).Msg("Starting capture agent HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down capture agent...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Capture agent exited")
}
