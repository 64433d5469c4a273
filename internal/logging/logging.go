package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"boxoffice/backend/internal/config"
)

// Cleanup releases the log file, if any.
type Cleanup func() error

// New builds the process logger. Every record carries the service name so
// api, worker and CLI output can share one sink.
func New(cfg config.LoggingConfig, service string) (*slog.Logger, Cleanup, error) {
	handlerOptions := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		AddSource:   true,
		ReplaceAttr: utcTime,
	}

	writers := []io.Writer{os.Stdout}
	var file *os.File
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		file = f
		writers = append(writers, file)
	}

	logger := slog.New(newHandler(io.MultiWriter(writers...), cfg.Format, handlerOptions))
	if service != "" {
		logger = logger.With("service", service)
	}
	cleanup := func() error {
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, cleanup, nil
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// utcTime renders record timestamps in UTC, the zone every stored datetime
// uses.
func utcTime(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 && a.Value.Kind() == slog.KindTime {
		a.Value = slog.TimeValue(a.Value.Time().UTC())
	}
	return a
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
