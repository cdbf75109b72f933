package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/ldm-go/internal/app"
	"go.uber.org/zap"
)

// QueueHandler exposes the queue processor
type QueueHandler struct {
	ctx      context.Context
	queueMgr *app.QueueManager
	logger   *zap.Logger
}

// NewQueueHandler creates a queue handler. ctx bounds the lifetime of a processor started over HTTP.
func NewQueueHandler(ctx context.Context, queueMgr *app.QueueManager, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{ctx: ctx, queueMgr: queueMgr, logger: logger}
}

// Status handles GET /api/v1/queue
func (h *QueueHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.queueMgr.Status())
}

// Start handles POST /api/v1/queue/start
func (h *QueueHandler) Start(c *gin.Context) {
	if err := h.queueMgr.Start(h.ctx); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("Queue started over API")
	c.JSON(http.StatusOK, h.queueMgr.Status())
}

// Stop handles POST /api/v1/queue/stop. Running downloads keep going.
func (h *QueueHandler) Stop(c *gin.Context) {
	if err := h.queueMgr.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("Queue stopped over API")
	c.JSON(http.StatusOK, h.queueMgr.Status())
}
