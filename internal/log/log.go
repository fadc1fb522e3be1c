// Package log provides structured logging for the rig daemon.
// It wraps slog: text on a bench terminal, JSON when GO_ENV=production,
// with a level that can be raised at runtime.
package log

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logger   *slog.Logger
	levelVar slog.LevelVar
	once     sync.Once
)

// ParseLevel maps a config string to a slog level. Unknown strings mean
// info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger at the given level. Later calls only
// adjust the level.
func Init(level string) {
	levelVar.Set(ParseLevel(level))
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: &levelVar}
		if os.Getenv("GO_ENV") == "production" {
			logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
		}
		slog.SetDefault(logger)
	})
}

// SetLevel adjusts the level of the running logger.
func SetLevel(l slog.Level) {
	levelVar.Set(l)
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
