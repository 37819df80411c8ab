// Package logging holds the driver's process-wide structured logger.
// Library packages (session, metrics) log through L() so they stay usable
// without threading a logger through every constructor; the CLI installs a
// configured one at startup via Set.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	// Until the front-end configures anything, log human-readable at info
	// to stderr so a bare library import still produces usable diagnostics.
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// L returns the current process logger.
func L() *slog.Logger { return current.Load() }

// Set installs l as the process logger. Nil is ignored so callers can pass
// an optional override straight through.
func Set(l *slog.Logger) {
	if l != nil {
		current.Store(l)
	}
}

// ParseLevel maps the level names the CLI accepts onto slog levels.
// Unknown names fall back to info rather than failing; the CLI rejects
// them earlier, in its config validation.
func ParseLevel(name string) slog.Level {
	switch name {
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

// New builds a logger writing to w (stderr when nil). format selects the
// handler: "json" for machine collection, anything else for text.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
