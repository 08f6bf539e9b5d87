package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New or OpenFile.
type Option func(*config)

// WithDebug lowers the level to Debug. Driver and adapter calls log at
// Debug, so this is what surfaces per-request traffic.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		} else {
			c.level = slog.LevelInfo
		}
	}
}

// WithQuiet raises an Info level logger to Warn. Debug still wins.
func WithQuiet(quiet bool) Option {
	return func(c *config) {
		c.quiet = quiet
	}
}

// WithPretty selects the charmbracelet/log handler used by the CLI commands.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects slog's JSON handler.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter overrides the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = []io.Writer{w}
	}
}

// WithWriters writes every record to all of w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

// WithSource includes source file:line in log output.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}

// WithComponent tags every record with component=name.
func WithComponent(name string) Option {
	return func(c *config) {
		c.component = name
	}
}
