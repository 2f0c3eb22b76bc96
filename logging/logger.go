// Package logging builds the slog loggers used by the server and CLI, and
// captures the warnings logged during a refresh run.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	logger.Info("refresh started", "run_id", runID)
//	logger.Warn("activity roster unavailable", "activity", uid, "error", err)
//
// Attributes named like credentials (cookie, authorization, ...) are written
// as "[REDACTED]" by every handler built here.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const redacted = "[REDACTED]"

var (
	levels = map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	formats       = []string{"json", "text"}
	sensitiveKeys = []string{"cookie", "set-cookie", "authorization", "password", "__ac"}
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
	// Output is stdout, stderr or a file path. Files are appended to.
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Logger wraps slog.Logger and owns the output file, if any.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New creates a logger for cfg. Empty fields take their defaults.
func New(cfg Config) (*Logger, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       levelVar,
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceAttr,
	}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler), level: levelVar, closer: closer}, nil
}

// replaceAttr formats timestamps as RFC 3339 and hides credentials.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
	}
	if isSensitive(a.Key) {
		return slog.String(a.Key, redacted)
	}
	return a
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if key == k || strings.HasSuffix(key, "_"+k) {
			return true
		}
	}
	return false
}

// Close closes the log file when output goes to one.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.Set(lvl)
	return nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With("component", name)
}

func (cfg *Config) validate() error {
	if _, err := ParseLevel(cfg.Level); err != nil {
		return err
	}
	for _, f := range formats {
		if cfg.Format == f {
			return nil
		}
	}
	return fmt.Errorf("format must be one of: %s", strings.Join(formats, ", "))
}

func (cfg *Config) setDefaults() {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// ParseLevel converts a level name, in any case, to a slog.Level. Unknown names
// return slog.LevelInfo and an error.
func ParseLevel(level string) (slog.Level, error) {
	if lvl, ok := levels[strings.ToLower(level)]; ok {
		return lvl, nil
	}
	return slog.LevelInfo, fmt.Errorf("level must be one of debug, info, warn, error; got %q", level)
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", output, err)
	}
	return f, f, nil
}
