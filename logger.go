package vidfx

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/vidfx/backend"
	"github.com/gogpu/vidfx/internal/gpu"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for vidfx and all its sub-packages.
// By default vidfx produces no log output. Pass nil to restore the silent
// default.
//
// Log levels used by vidfx:
//   - [slog.LevelDebug]: per-frame diagnostics (ring offsets, dropped pictures)
//   - [slog.LevelInfo]: lifecycle events (file opened, backend selected)
//   - [slog.LevelWarn]: degraded rendering (degenerate bind groups, color
//     space fallback, failed top-ups)
//
// Example:
//
//	vidfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	backend.SetLogger(l)
	gpu.SetLogger(l)
}

// Logger returns the current logger used by vidfx.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
