package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryTransfer LogCategory = "transfer" // Per-download lifecycle (JSON)
	CategoryQueue    LogCategory = "queue"    // Queue admission events (JSON)
	CategoryError    LogCategory = "error"    // Application errors (JSON)
)

// Categories lists every category written by MultiLogger
var Categories = []LogCategory{CategoryTransfer, CategoryQueue, CategoryError}

// ParseCategory validates a category name
func ParseCategory(name string) (LogCategory, error) {
	for _, c := range Categories {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown log category: %q", name)
}

// LogPath returns the file path of a category log for the given day
func LogPath(logsDir string, category LogCategory, day time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s-%s.log", category, day.Format("20060102")))
}

// dailyFile is a WriteSyncer that switches to a new dated file when the day changes
type dailyFile struct {
	dir      string
	category LogCategory
	now      func() time.Time

	mu   sync.Mutex
	date string
	file *os.File
}

func (f *dailyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if date := now.Format("20060102"); f.file == nil || date != f.date {
		if f.file != nil {
			f.file.Close()
		}
		file, err := os.OpenFile(LogPath(f.dir, f.category, now), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			f.file = nil
			return 0, err
		}
		f.file, f.date = file, date
	}
	return f.file.Write(p)
}

func (f *dailyFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Sync()
}

func (f *dailyFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// MultiLogger provides categorized logging with one dated JSON file per category
type MultiLogger struct {
	loggers map[LogCategory]*zap.Logger
	files   map[LogCategory]*dailyFile
	config  MultiLoggerConfig
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	return newMultiLogger(config, time.Now)
}

func newMultiLogger(config MultiLoggerConfig, now func() time.Time) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*zap.Logger),
		files:   make(map[LogCategory]*dailyFile),
		config:  config,
	}

	for _, category := range Categories {
		categoryLevel := level
		if category == CategoryError {
			categoryLevel = zapcore.ErrorLevel
		}
		file := &dailyFile{dir: config.LogsDir, category: category, now: now}
		ml.files[category] = file
		ml.loggers[category] = ml.createStructuredLogger(file, categoryLevel)
	}

	return ml, nil
}

// createStructuredLogger creates a JSON-formatted logger writing to a category file
func (ml *MultiLogger) createStructuredLogger(out zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), out, level)
	return zap.New(core)
}

// LogsDir returns the logs directory path
func (ml *MultiLogger) LogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	if logger, ok := ml.loggers[category]; ok {
		return logger
	}
	return ml.loggers[CategoryError]
}

// Transfer returns the transfer logger
func (ml *MultiLogger) Transfer() *zap.Logger {
	return ml.GetLogger(CategoryTransfer)
}

// Queue returns the queue logger
func (ml *MultiLogger) Queue() *zap.Logger {
	return ml.GetLogger(CategoryQueue)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes every category file
func (ml *MultiLogger) Close() error {
	lastErr := ml.Sync()
	for _, file := range ml.files {
		if err := file.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
