package voxel

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/facepool"
	"github.com/gogpu/voxel/internal/worldgen"
	"github.com/gogpu/voxel/render"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for voxel and all its sub-packages.
// By default, voxel produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by voxel:
//   - [slog.LevelDebug]: per-chunk events (requests, installs, stale results)
//   - [slog.LevelInfo]: lifecycle events (pool and pipeline creation)
//   - [slog.LevelWarn]: pool exhaustion and failed generation requests
//
// Example:
//
//	voxel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	facepool.SetLogger(l)
	chunk.SetLogger(l)
	render.SetLogger(l)
	worldgen.SetLogger(l)
}

// Logger returns the current logger used by voxel.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
