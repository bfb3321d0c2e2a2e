// Package logging provides shared logging utilities for mcpgate.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the wire shape of log output.
type Format string

const (
	// FormatJSON emits one JSON object per record.
	FormatJSON Format = "json"
	// FormatText emits human-readable key=value lines.
	FormatText Format = "text"
)

// Config holds structured-logging configuration.
type Config struct {
	// Level is the minimum level emitted (default INFO).
	Level slog.Level
	// Format selects JSON or text output (default JSON).
	Format Format
	// Output is the destination writer (default os.Stderr).
	Output io.Writer
	// AddSource attaches file:line to every record.
	AddSource bool
	// Component is stamped on every record when set.
	Component string
	// Buffer, when set, additionally captures records for the logs API.
	Buffer *RingBuffer
}

// New builds a structured logger. Records pass through secret redaction
// before reaching the sink, and optionally through the in-memory ring
// buffer that backs the operational logs endpoint.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String("ts", t.Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.Output, opts)
	default:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	if cfg.Buffer != nil {
		handler = newBufferHandler(cfg.Buffer, handler)
	}
	handler = NewRedactingHandler(handler)

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With(slog.String("component", cfg.Component))
	}
	return logger
}

// NewRotatingWriter returns a size-rotated log file writer. Callers pass it
// as Config.Output when logging to disk.
func NewRotatingWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) io.Writer {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

// ParseLevel converts a config string to a slog.Level, defaulting to INFO.
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

// ParseFormat converts a config string to a Format, defaulting to JSON.
func ParseFormat(format string) Format {
	switch strings.ToLower(format) {
	case "text", "pretty":
		return FormatText
	default:
		return FormatJSON
	}
}

// DiscardHandler drops every record. slog.New(DiscardHandler{}) gives a
// no-op logger for tests and optional dependencies.
type DiscardHandler struct{}

func (DiscardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (DiscardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d DiscardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d DiscardHandler) WithGroup(string) slog.Handler           { return d }

// NewDiscardLogger returns a logger that discards all output.
func NewDiscardLogger() *slog.Logger {
	return slog.New(DiscardHandler{})
}
