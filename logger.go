package cthyb

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with solver-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRun adds a run identifier to the logger.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", id),
	}
}

// WithChain adds the rank of a Markov chain to the logger.
func (l *Logger) WithChain(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("chain", rank),
	}
}

// LogSolveStart logs the start of a solve.
func (l *Logger) LogSolveStart(ctx context.Context, chains, warmup, cycles int, subspaces int) {
	l.InfoContext(ctx, "solve started",
		"chains", chains,
		"warmup_cycles", warmup,
		"cycles", cycles,
		"subspaces", subspaces,
	)
}

// LogChainDone logs the end of one chain.
func (l *Logger) LogChainDone(ctx context.Context, cycles int, averageSign float64, interrupted bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "chain failed",
			"cycles", cycles,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "chain completed",
		"cycles", cycles,
		"average_sign", averageSign,
		"interrupted", interrupted,
	)
}

// LogSolveDone logs the end of a solve.
func (l *Logger) LogSolveDone(ctx context.Context, cycles int, averageSign float64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "solve failed",
			"cycles", cycles,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "solve completed",
			"cycles", cycles,
			"average_sign", averageSign,
			"duration", duration,
		)
	}
}

// LogDiagnostics logs a diagnostics dump.
func (l *Logger) LogDiagnostics(ctx context.Context, name string, size int, err error) {
	if err != nil {
		l.WarnContext(ctx, "diagnostics dump failed",
			"name", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "diagnostics written",
			"name", name,
			"bytes", size,
		)
	}
}
