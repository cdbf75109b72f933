package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/ldm-go/api/handlers"
	"github.com/yourusername/ldm-go/api/middleware"
	"github.com/yourusername/ldm-go/internal/app"
	"github.com/yourusername/ldm-go/pkg/logger"
)

// SetupRouter sets up the HTTP control API. ctx bounds background work started through the API.
func SetupRouter(
	ctx context.Context,
	queueMgr *app.QueueManager,
	downloadMgr *app.DownloadManager,
	logs *logger.Router,
	logsDir string,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(logs))
	router.Use(middleware.Recovery(logs))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(queueMgr)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		downloadHandler := handlers.NewDownloadHandler(downloadMgr, logs.Base())
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/stats", downloadHandler.GetStats)
			downloads.GET("/:id", downloadHandler.GetDownload)
			downloads.POST("/:id/start", downloadHandler.StartDownload)
			downloads.POST("/:id/pause", downloadHandler.PauseDownload)
			downloads.POST("/:id/stop", downloadHandler.StopDownload)
			downloads.POST("/:id/toggle", downloadHandler.ToggleDownload)
			downloads.DELETE("/:id", downloadHandler.DeleteDownload)
		}

		queueHandler := handlers.NewQueueHandler(ctx, queueMgr, logs.Queue())
		queue := v1.Group("/queue")
		{
			queue.GET("", queueHandler.Status)
			queue.POST("/start", queueHandler.Start)
			queue.POST("/stop", queueHandler.Stop)
		}

		logHandler := handlers.NewLogHandler(logsDir)
		logRoutes := v1.Group("/logs")
		{
			logRoutes.GET("/categories", logHandler.GetCategories)
			logRoutes.GET("/:category", logHandler.GetLogs)
			logRoutes.GET("/:category/export", logHandler.ExportLogs)
		}

		eventsHandler := handlers.NewEventsHandler(downloadMgr.Hub(), logs.Base())
		v1.GET("/events", eventsHandler.HandleWebSocket)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
