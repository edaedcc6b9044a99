// Package logging builds the slog loggers used across deskweb. The level is
// held in a slog.LevelVar so a configuration reload can change it while the
// server is running.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents a logging severity level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Validate checks if the level is a valid logging level.
func (l Level) Validate() error {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return nil
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", l)
	}
}

// ToSlogLevel converts the Level to its slog.Level equivalent.
// Unknown levels default to slog.LevelInfo.
func (l Level) ToSlogLevel() slog.Level {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format represents the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Validate checks if the format is a valid logging format.
func (f Format) Validate() error {
	switch f {
	case FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", f)
	}
}

// Config holds logging configuration settings.
type Config struct {
	Level  Level  `config:"level"`
	Format Format `config:"format"`
	// Access enables one log line per request.
	Access bool `config:"access"`
}

// DefaultConfig logs text at info level with access logging on.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: FormatText, Access: true}
}

// Validate applies defaults for empty fields and checks the rest.
func (c *Config) Validate() error {
	if c.Level == "" {
		c.Level = LevelInfo
	}
	if c.Format == "" {
		c.Format = FormatText
	}
	if err := c.Level.Validate(); err != nil {
		return err
	}
	return c.Format.Validate()
}

// Logger pairs a *slog.Logger with the LevelVar controlling it.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a logger writing to stdout.
func New(cfg Config) *Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a text or JSON logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(cfg.Level.ToSlogLevel())
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler), level: level}
}

// SetLevel changes the level of this logger and everything derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.ToSlogLevel())
}

// Level reports the current level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}
