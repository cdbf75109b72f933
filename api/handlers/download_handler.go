package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/ldm-go/internal/app"
	"github.com/yourusername/ldm-go/internal/domain"
	"github.com/yourusername/ldm-go/internal/transfer"
	"go.uber.org/zap"
)

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	downloadMgr *app.DownloadManager
	logger      *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(downloadMgr *app.DownloadManager, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloadMgr: downloadMgr,
		logger:      logger,
	}
}

// ControlResponse reports what a control request did
type ControlResponse struct {
	ID       string            `json:"id"`
	Outcome  string            `json:"outcome"`
	Accepted bool              `json:"accepted"`
	Download *app.DownloadView `json:"download,omitempty"`
}

// AddDownload handles POST /api/v1/downloads
func (h *DownloadHandler) AddDownload(c *gin.Context) {
	var req app.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	download, err := h.downloadMgr.Add(req)
	if err != nil {
		h.fail(c, "Failed to add download", err)
		return
	}

	c.JSON(http.StatusCreated, download)
}

// GetDownload handles GET /api/v1/downloads/:id
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	download, err := h.downloadMgr.Get(c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get download", err)
		return
	}

	c.JSON(http.StatusOK, download)
}

// ListDownloads handles GET /api/v1/downloads
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	filters := make(map[string]interface{})

	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if verify := c.Query("verify_status"); verify != "" {
		filters["verify_status"] = verify
	}

	downloads, err := h.downloadMgr.List(filters)
	if err != nil {
		h.fail(c, "Failed to list downloads", err)
		return
	}

	c.JSON(http.StatusOK, downloads)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	stats, err := h.downloadMgr.Stats()
	if err != nil {
		h.fail(c, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// StartDownload handles POST /api/v1/downloads/:id/start
func (h *DownloadHandler) StartDownload(c *gin.Context) {
	h.control(c, "start", h.downloadMgr.Start)
}

// PauseDownload handles POST /api/v1/downloads/:id/pause
func (h *DownloadHandler) PauseDownload(c *gin.Context) {
	h.control(c, "pause", h.downloadMgr.Pause)
}

// StopDownload handles POST /api/v1/downloads/:id/stop
func (h *DownloadHandler) StopDownload(c *gin.Context) {
	h.control(c, "stop", h.downloadMgr.Stop)
}

// ToggleDownload handles POST /api/v1/downloads/:id/toggle
func (h *DownloadHandler) ToggleDownload(c *gin.Context) {
	h.control(c, "toggle", h.downloadMgr.Toggle)
}

// DeleteDownload handles DELETE /api/v1/downloads/:id?delete_file=true
func (h *DownloadHandler) DeleteDownload(c *gin.Context) {
	id := c.Param("id")
	deleteFile, _ := strconv.ParseBool(c.DefaultQuery("delete_file", "false"))

	if err := h.downloadMgr.Remove(id, deleteFile); err != nil {
		h.fail(c, "Failed to delete download", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download deleted"})
}

func (h *DownloadHandler) control(c *gin.Context, action string, fn func(id string) (transfer.Outcome, error)) {
	id := c.Param("id")

	outcome, err := fn(id)
	if err != nil {
		h.fail(c, "Failed to "+action+" download", err)
		return
	}

	response := ControlResponse{ID: id, Outcome: outcome.String(), Accepted: outcome.Accepted()}
	if download, err := h.downloadMgr.Get(id); err == nil {
		response.Download = download
	}
	c.JSON(http.StatusOK, response)
}

func (h *DownloadHandler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("id", c.Param("id")), zap.Error(err))
		c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps application errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrDownloadActive), errors.Is(err, app.ErrDuplicateDownload):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrMissingURL), errors.Is(err, transfer.ErrMissingDestination):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
