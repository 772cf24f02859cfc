package labelkit

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with labelkit-specific context.
// This provides structured logging with consistent field names.
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
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithReference adds a reference name field to the logger.
func (l *Logger) WithReference(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("reference", name),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogOperation logs the outcome of a session operation. Failures are logged
// at error level, successes at debug level.
func (l *Logger) LogOperation(ctx context.Context, op string, err error, attrs ...any) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed", append(attrs, "error", err)...)
		return
	}
	l.DebugContext(ctx, op+" completed", attrs...)
}

// LogDuplicateFeatures warns about repeated identifiers in a primary feature list.
func (l *Logger) LogDuplicateFeatures(ctx context.Context, op string, duplicates, total int) {
	l.WarnContext(ctx, "duplicate primary features resolved to their first column",
		"op", op,
		"duplicates", duplicates,
		"features", total,
	)
}

// LogLeaks reports buffers still registered when a session closes.
func (l *Logger) LogLeaks(ctx context.Context, leaked int) {
	if leaked > 0 {
		l.WarnContext(ctx, "session closed with live buffers",
			"leaked", leaked,
		)
		return
	}
	l.DebugContext(ctx, "session closed")
}
