package vsengine

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with the engine's structured fields.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithSchema adds a schema field to the logger.
func (l *Logger) WithSchema(name string) *Logger {
	return &Logger{Logger: l.Logger.With("schema", name)}
}

// WithKey adds a key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{Logger: l.Logger.With("key", key)}
}

// LogSearch logs a hybrid search operation.
func (l *Logger) LogSearch(ctx context.Context, plan string, k, matched int, dur time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"plan", plan, "k", k, "duration", dur, "error", err)
		return
	}
	l.DebugContext(ctx, "search completed",
		"plan", plan, "k", k, "matched", matched, "duration", dur)
}

// LogMutation logs the application of a single mutation record.
func (l *Logger) LogMutation(ctx context.Context, schemaID, key string, deletion bool, dur time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "mutation apply failed",
			"schema", schemaID, "key", key, "deletion", deletion, "error", err)
		return
	}
	l.DebugContext(ctx, "mutation applied",
		"schema", schemaID, "key", key, "deletion", deletion, "duration", dur)
}

// LogBackfill logs a schema backfill sweep.
func (l *Logger) LogBackfill(ctx context.Context, schemaID string, keys int, dur time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backfill failed",
			"schema", schemaID, "keys", keys, "error", err)
		return
	}
	l.InfoContext(ctx, "backfill completed",
		"schema", schemaID, "keys", keys, "duration", dur)
}

// LogAttribute logs an attribute creation.
func (l *Logger) LogAttribute(ctx context.Context, schemaID, alias string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "attribute creation failed",
			"schema", schemaID, "attribute", alias, "error", err)
		return
	}
	l.InfoContext(ctx, "attribute created",
		"schema", schemaID, "attribute", alias)
}

// LogFanout logs a cross-partition search round.
func (l *Logger) LogFanout(ctx context.Context, partitions, failed int, dur time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "fan-out completed with failures",
			"partitions", partitions, "failed", failed, "duration", dur, "error", err)
		return
	}
	l.DebugContext(ctx, "fan-out completed",
		"partitions", partitions, "duration", dur)
}
