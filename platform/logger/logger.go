// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// SubjectIDKey is the context key for the scoring subject being processed
	SubjectIDKey contextKey = "subject_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if subjectID, ok := ctx.Value(SubjectIDKey).(string); ok && subjectID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("subject_id", subjectID)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// IngestAccepted logs a successfully ingested tracking event.
func (l *Logger) IngestAccepted(eventType, subjectID string, score int, stored bool) {
	l.Info("event_ingested",
		slog.String("event_type", eventType),
		slog.String("subject_id", subjectID),
		slog.Int("score", score),
		slog.Bool("stored", stored),
	)
}

// ScoringError logs a non-fatal failure in the scoring/rollup pipeline.
// These leave derived data stale; the recompute operation repairs them.
func (l *Logger) ScoringError(stage, subjectID string, err error) {
	l.Error("scoring_pipeline_error",
		slog.String("stage", stage),
		slog.String("subject_id", subjectID),
		slog.String("error", err.Error()),
	)
}

// SignalEmitted logs a qualification threshold crossing.
func (l *Logger) SignalEmitted(subjectID, band string, score7d, score30d int) {
	l.Info("intent_signal_emitted",
		slog.String("subject_id", subjectID),
		slog.String("band", band),
		slog.Int("score_7d", score7d),
		slog.Int("score_30d", score30d),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
