// Package logging provides structured logging configuration using log/slog.
//
// Run-scoped values (run id, collection, input line) travel in the context so
// every log entry for a record can be correlated with its ledger row. Requests
// to the status server additionally carry chi's request id.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	ctxKeyRunID      contextKey = "run_id"
	ctxKeyCollection contextKey = "collection"
	ctxKeyLine       contextKey = "line"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ContextWithRunID tags the context with the run id.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

// ContextWithCollection tags the context with the collection being processed.
func ContextWithCollection(ctx context.Context, collection string) context.Context {
	return context.WithValue(ctx, ctxKeyCollection, collection)
}

// ContextWithLine tags the context with the input line being processed.
func ContextWithLine(ctx context.Context, line int) context.Context {
	return context.WithValue(ctx, ctxKeyLine, line)
}

// RunIDFromContext returns the run id, or "" if unset.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRunID).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the default logger enriched with the run-scoped values
// found in ctx.
//
// Usage:
//
//	ctx = logging.ContextWithCollection(ctx, "accounts")
//	logging.FromContext(ctx).Info("writing records")
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	if c, ok := ctx.Value(ctxKeyCollection).(string); ok && c != "" {
		logger = logger.With("collection", c)
	}
	if line, ok := ctx.Value(ctxKeyLine).(int); ok && line > 0 {
		logger = logger.With("line", line)
	}

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
