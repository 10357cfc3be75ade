// Package debug holds the process-wide logger used by the command line tool.
// Library packages take an injected *slog.Logger instead.
package debug

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger  = slog.New(slog.NewTextHandler(io.Discard, nil))
	enabled bool
	mu      sync.RWMutex
)

// Options configures Init.
type Options struct {
	// Enable turns on debug-level output. When false only errors are kept.
	Enable bool
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init replaces the process logger.
func Init(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := slog.LevelError
	if opts.Enable {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	mu.Lock()
	defer mu.Unlock()
	enabled = opts.Enable
	logger = slog.New(handler).With("app", "duckql")
	return logger
}

// Enabled reports whether debug output is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }

// Warn logs a warning message
func Warn(msg string, args ...any) { Logger().Warn(msg, args...) }

// Error logs an error message
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// Logger returns the current logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
