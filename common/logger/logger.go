package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Logger is a slog.Logger that attaches a stack to errors and knows the
// request-scoped fields this service logs with
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout
func New(level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a logger writing to w. format "json" emits one JSON
// object per line; anything else is colored text for terminals.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	lvl := ParseLevel(level)

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		h = tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly})
	}
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
// Unknown values mean info.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

type requestIDKey struct{}

// ContextWithRequestID stores a request id for WithContext
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// WithContext adds request_id when ctx carries one
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return l.with("request_id", id)
	}
	return l
}

func (l *Logger) WithUploadID(uploadID string) *Logger {
	return l.with("upload_id", uploadID)
}

func (l *Logger) WithBuyer(buyer string) *Logger {
	return l.with("buyer", buyer)
}

// Error logs at error level with the caller's stack
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append(args, "stack", string(debug.Stack()))...)
}
