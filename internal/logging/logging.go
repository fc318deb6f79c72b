// Package logging writes the structured run log.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config selects where and how much to log.
type Config struct {
	Path  string
	Debug bool
}

// Setup points the default slog logger at a JSON log file and returns a
// function that closes it and restores a discarding logger. Until Setup is
// called nothing is logged.
func Setup(cfg Config) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		Discard()
		return nil, err //nolint:wrapcheck
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		Discard()
		return nil, err //nolint:wrapcheck
	}

	slog.SetDefault(slog.New(NewHandler(f, cfg.Debug)))
	slog.Debug("logger initialized", "path", cfg.Path)

	return func() error {
		Discard()
		return f.Close()
	}, nil
}

// NewHandler returns the JSON handler used for the log file. Debug enables
// debug records and source locations.
func NewHandler(w io.Writer, debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})
}

// Discard drops every log record.
func Discard() {
	slog.SetDefault(slog.New(slog.DiscardHandler))
}
