package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Import pipeline
		v1.POST("/import/preview", handler.PreviewImport)
		v1.POST("/import/commit", handler.CommitImport)
		v1.GET("/import/runs/:run_id", handler.GetImportRun)

		// Field capture endpoints
		v1.POST("/readings", handler.CreateReading)
		v1.POST("/readings/bulk", handler.BulkReadings)
		v1.POST("/status-events", handler.CreateStatusEvent)
		v1.POST("/status-events/bulk", handler.BulkStatusEvents)

		// Participant directory
		v1.POST("/roster/chips", handler.UploadRoster)
		v1.GET("/roster/chips", handler.GetChipIndex)

		// Geofence reimport
		v1.POST("/reimport", handler.TriggerReimport)
	}
}
