// Package logger builds the slog loggers used across parley.
//
// The CLI commands log through the charmbracelet/log handler on stderr,
// serve additionally fans records out to a JSON file in the .parley/
// directory (see OpenFile and Multi).
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level     slog.Level
	quiet     bool
	pretty    bool
	json      bool
	source    bool
	component string
	writers   []io.Writer
}

func (c *config) effectiveLevel() slog.Level {
	if c.quiet && c.level == slog.LevelInfo {
		return slog.LevelWarn
	}
	return c.level
}

func (c *config) writer() io.Writer {
	switch len(c.writers) {
	case 0:
		return os.Stdout
	case 1:
		return c.writers[0]
	default:
		return io.MultiWriter(c.writers...)
	}
}

// New returns a *slog.Logger configured by opts. With no options it writes
// Info and above as slog text to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(c)
	}

	w := c.writer()
	level := c.effectiveLevel()

	var h slog.Handler
	switch {
	case c.pretty:
		h = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
		})
	case c.json:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: c.source,
		})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: c.source,
		})
	}

	l := slog.New(h)
	if c.component != "" {
		l = l.With("component", c.component)
	}
	return l
}

// OpenFile appends JSON records to the file at path, creating it and its
// parent directory when missing. Writer options in opts are ignored. The
// returned closer must be called once the logger is no longer used.
func OpenFile(path string, opts ...Option) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	opts = append(opts, WithJSON(true), WithPretty(false), WithWriter(f))
	return New(opts...), f, nil
}

// Nop returns a logger that drops every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
