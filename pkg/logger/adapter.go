package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Router hands out category loggers. Entries always reach the base logger and are
// mirrored into the category file when a MultiLogger is configured.
type Router struct {
	base       *zap.Logger
	multi      *MultiLogger
	categories map[LogCategory]*zap.Logger
}

// NewRouter creates a router. multi may be nil, in which case every category is the base logger.
func NewRouter(base *zap.Logger, multi *MultiLogger) *Router {
	if base == nil {
		base = zap.NewNop()
	}
	r := &Router{base: base, multi: multi, categories: make(map[LogCategory]*zap.Logger)}
	for _, category := range Categories {
		r.categories[category] = base
		if multi != nil {
			file := multi.GetLogger(category).Core()
			r.categories[category] = base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return zapcore.NewTee(core, file)
			}))
		}
	}
	return r
}

// Base returns the main application logger
func (r *Router) Base() *zap.Logger {
	return r.base
}

// Category returns a logger writing to the base output and the category file
func (r *Router) Category(category LogCategory) *zap.Logger {
	if logger, ok := r.categories[category]; ok {
		return logger
	}
	return r.base
}

// Transfer returns the transfer category logger
func (r *Router) Transfer() *zap.Logger {
	return r.Category(CategoryTransfer)
}

// Queue returns the queue category logger
func (r *Router) Queue() *zap.Logger {
	return r.Category(CategoryQueue)
}

// LogError logs an application error to the base logger and the error file
func (r *Router) LogError(msg string, fields ...zap.Field) {
	r.Category(CategoryError).Error(msg, fields...)
}

// Sync flushes all loggers
func (r *Router) Sync() error {
	err := r.base.Sync()
	if r.multi != nil {
		if mErr := r.multi.Sync(); mErr != nil {
			err = mErr
		}
	}
	return err
}

// Multi returns the underlying multi-logger, if any
func (r *Router) Multi() *MultiLogger {
	return r.multi
}
