package framegraph

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// Devices opened by live graphs. SetLogger forwards to every one of them
// that accepts a logger.
var (
	devicesMu sync.Mutex
	devices   = map[loggerSetter]int{}
)

// SetLogger configures the logger for framegraph and the backends of every
// open Graph. By default nothing is logged. Pass nil to restore silence.
//
// Log levels used:
//   - [slog.LevelDebug]: per-compile statistics, submissions, pool activity
//   - [slog.LevelInfo]: graph lifecycle (creation, close)
//   - [slog.LevelWarn]: unimplemented backend paths, diagnostics of warning severity
//   - [slog.LevelError]: diagnostics of error severity
//
// Example:
//
//	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	devicesMu.Lock()
	defer devicesMu.Unlock()
	for d := range devices {
		d.SetLogger(l)
	}
}

// Logger returns the current logger. Sub-packages and tools call it to
// share the same configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// trackDevice hands the current logger to dev and keeps it updated until
// untrackDevice is called.
func trackDevice(dev any) {
	ls, ok := dev.(loggerSetter)
	if !ok {
		return
	}
	ls.SetLogger(Logger())
	devicesMu.Lock()
	devices[ls]++
	devicesMu.Unlock()
}

func untrackDevice(dev any) {
	ls, ok := dev.(loggerSetter)
	if !ok {
		return
	}
	devicesMu.Lock()
	defer devicesMu.Unlock()
	if devices[ls]--; devices[ls] <= 0 {
		delete(devices, ls)
	}
}
