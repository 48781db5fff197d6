package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init initializes the global logger with timestamp precision to milliseconds.
// Records below minLevel are dropped.
func Init(minLevel slog.Level) {
	once.Do(func() {
		handler := NewHandler(os.Stdout, minLevel)
		defaultLogger = slog.New(handler)
		slog.SetDefault(defaultLogger)
	})
}

// Handler is a custom slog handler with precise timestamps.
type Handler struct {
	out   io.Writer
	min   slog.Level
	attrs []slog.Attr
	mu    *sync.Mutex
}

// NewHandler creates a new handler writing to the given writer.
func NewHandler(out io.Writer, minLevel slog.Level) *Handler {
	return &Handler{out: out, min: minLevel, mu: &sync.Mutex{}}
}

// Enabled reports whether records at the given level are logged.
func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.min
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	// Format: 2024-01-15 14:30:45.123 [INF] message key=value
	ts := r.Time.Format("2006-01-02 15:04:05.000")
	level := levelString(r.Level)

	h.mu.Lock()
	defer h.mu.Unlock()

	// Write timestamp and level
	fmt.Fprintf(h.out, "%s [%s] %s", ts, level, r.Message)

	// Write handler attributes, then record attributes
	for _, a := range h.attrs {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
	}

	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
		return true
	})

	fmt.Fprintln(h.out)

	return nil
}

// WithAttrs returns a new handler carrying the given attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	return &Handler{out: h.out, min: h.min, attrs: merged, mu: h.mu}
}

// WithGroup returns a new handler with the given group.
func (h *Handler) WithGroup(name string) slog.Handler {
	return h
}

// levelString returns a short string for the log level.
func levelString(l slog.Level) string {
	switch l {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	default:
		return "???"
	}
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

// Timed returns elapsed time since start for logging duration.
func Timed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
