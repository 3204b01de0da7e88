package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jerome/simply-versioned/internal/config"
	"github.com/jerome/simply-versioned/internal/versioning"
)

// svHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type svHandler struct {
	w     io.Writer
	opID  string
	level slog.Level
	attrs []slog.Attr
}

func (h *svHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *svHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, level, h.opID, r.Message)
	if err != nil {
		return err
	}

	// Write pre-set attrs.
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}

	// Write per-record attrs.
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *svHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &svHandler{
		w:     h.w,
		opID:  h.opID,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *svHandler) WithGroup(string) slog.Handler { return h }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger creates a structured logger that writes to logDir/svctl.log and
// stderr, or to stderr alone when logDir is empty. Format "json" writes one
// zerolog JSON object per line; anything else uses svHandler.
// The returned Closer releases the log file.
func newLogger(cfg config.LogConfig, logDir string, opID string) (versioning.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}

		logPath := filepath.Join(logDir, "svctl.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = io.MultiWriter(f, os.Stderr)
		closer = f
	}

	return newLoggerTo(w, cfg, opID), closer, nil
}

func newLoggerTo(w io.Writer, cfg config.LogConfig, opID string) versioning.Logger {
	if cfg.Format == "json" {
		zl := zerolog.New(w).
			Level(zerologLevel(cfg.Level)).
			With().
			Timestamp().
			Str("op", opID).
			Logger()
		return &zerologAdapter{l: zl}
	}
	handler := &svHandler{w: w, opID: opID, level: slogLevel(cfg.Level)}
	return &slogAdapter{l: slog.New(handler)}
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zerologLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// slogAdapter wraps *slog.Logger to satisfy the versioning.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// zerologAdapter wraps zerolog.Logger to satisfy the versioning.Logger
// interface. args are alternating keys and values, as with slog.
type zerologAdapter struct {
	l zerolog.Logger
}

func (a *zerologAdapter) Debug(msg string, args ...any) { a.l.Debug().Fields(args).Msg(msg) }
func (a *zerologAdapter) Info(msg string, args ...any)  { a.l.Info().Fields(args).Msg(msg) }
func (a *zerologAdapter) Warn(msg string, args ...any)  { a.l.Warn().Fields(args).Msg(msg) }
func (a *zerologAdapter) Error(msg string, args ...any) { a.l.Error().Fields(args).Msg(msg) }
