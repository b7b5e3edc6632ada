// Package logging provides structured logging for prodstats.
//
// This package wraps the standard library's log/slog package so every
// component logs the same way. Output is text on a terminal and JSON
// otherwise, unless the format is forced.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, logging.FormatAuto)
//
//	// Get a component logger
//	log := logging.Component("cache")
//	log.Info("dataset loaded", "rows", 1_000_000, "generation", 3)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format selects the log output encoding.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger writing to stdout.
func Init(level slog.Level, format Format) {
	InitWriter(os.Stdout, level, format)
}

// InitWriter initializes the global logger writing to w.
// FormatAuto picks text when w is a terminal and JSON otherwise.
func InitWriter(w io.Writer, level slog.Level, format Format) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if resolveFormat(w, format) == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func resolveFormat(w io.Writer, format Format) Format {
	if format != FormatAuto && format != "" {
		return format
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatText
	}
	return FormatJSON
}

// ParseLevel parses "debug", "info", "warn" or "error". Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// ParseFormat parses "auto", "text" or "json". Unknown values map to auto.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText:
		return FormatText
	case FormatJSON:
		return FormatJSON
	default:
		return FormatAuto
	}
}

func logger() *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, FormatAuto)
	}
	return Logger
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	return logger().With(args...)
}

// Component returns a logger for a specific component.
//
// Example:
//
//	log := logging.Component("store")
//	log.Info("indexes built") // Output: time=... level=INFO component=store msg="indexes built"
func Component(name string) *slog.Logger {
	return logger().With("component", name)
}

// WithContext returns a logger that includes request-scoped values.
func WithContext(ctx context.Context) *slog.Logger {
	l := logger()

	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		l = l.With("request_id", requestID)
	}
	if gen, ok := ctx.Value(contextKeyGeneration).(uint64); ok {
		l = l.With("generation", gen)
	}

	return l
}

type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeyGeneration
)

// ContextWithRequestID adds a request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// ContextWithGeneration adds a store generation to the context for logging.
func ContextWithGeneration(ctx context.Context, gen uint64) context.Context {
	return context.WithValue(ctx, contextKeyGeneration, gen)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) { logger().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { logger().Info(msg, args...) }

// Warn logs at warning level.
func Warn(msg string, args ...any) { logger().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { logger().Error(msg, args...) }
