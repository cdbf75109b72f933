package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/ldm-go/pkg/logger"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	dateLayout      = "2006-01-02"
)

// LogHandler serves the category log files
type LogHandler struct {
	logsDir   string
	logReader *logger.LogReader
}

// NewLogHandler creates a new log handler
func NewLogHandler(logsDir string) *LogHandler {
	return &LogHandler{
		logsDir:   logsDir,
		logReader: logger.NewLogReader(logsDir),
	}
}

// GetCategories handles GET /api/v1/logs/categories
func (h *LogHandler) GetCategories(c *gin.Context) {
	categories := make([]string, 0, len(logger.Categories))
	for _, category := range logger.Categories {
		categories = append(categories, string(category))
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// GetLogs handles GET /api/v1/logs/:category?date=YYYY-MM-DD&q=text&limit=N
func (h *LogHandler) GetLogs(c *gin.Context) {
	category, day, ok := h.parse(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	query := c.Query("q")

	entries, err := h.logReader.ReadLogs(category, day, query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"date":     day.Format(dateLayout),
		"query":    query,
		"count":    len(entries),
		"entries":  entries,
	})
}

// ExportLogs handles GET /api/v1/logs/:category/export
func (h *LogHandler) ExportLogs(c *gin.Context) {
	category, day, ok := h.parse(c)
	if !ok {
		return
	}

	path := logger.LogPath(h.logsDir, category, day)
	c.FileAttachment(path, filepath.Base(path))
}

func (h *LogHandler) parse(c *gin.Context) (logger.LogCategory, time.Time, bool) {
	category, err := logger.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", time.Time{}, false
	}

	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		day, err = time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, use YYYY-MM-DD"})
			return "", time.Time{}, false
		}
	}
	return category, day, true
}
