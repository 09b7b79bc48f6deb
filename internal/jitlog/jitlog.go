// Package jitlog is the runtime's single logging sink. Every other package
// logs through here instead of reaching for fmt.Printf or a package-level
// log.Logger of its own.
package jitlog

import (
	"context"
	"sync"

	"tlog.app/go/tlog"
)

// Level mirrors the handful of severities the public API exposes
// (jit.SetLogLevel); it does not attempt to model tlog's full label system.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Callback matches jit.SetLogCallback's signature.
type Callback func(level Level, msg string)

var (
	mu       sync.Mutex
	level    = LevelInfo
	callback Callback
	root     = tlog.ContextWithSpan(context.Background(), tlog.Root())
)

// SetLevel gates what subsequently gets emitted. Messages below the
// configured level are dropped before they ever reach tlog or the callback.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetCallback installs (or, with nil, removes) a second sink that receives
// every emitted message alongside the stderr tlog span.
func SetCallback(cb Callback) {
	mu.Lock()
	defer mu.Unlock()
	callback = cb
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l <= level
}

func emit(l Level, msg string, kv ...any) {
	if !enabled(l) {
		return
	}
	tlog.SpanFromContext(root).Printw(msg, kv...)

	mu.Lock()
	cb := callback
	mu.Unlock()
	if cb != nil {
		cb(l, msg)
	}
}

func Errorw(msg string, kv ...any) { emit(LevelError, msg, kv...) }
func Warnw(msg string, kv ...any)  { emit(LevelWarn, msg, kv...) }
func Infow(msg string, kv ...any)  { emit(LevelInfo, msg, kv...) }
func Debugw(msg string, kv ...any) { emit(LevelDebug, msg, kv...) }
func Tracew(msg string, kv ...any) { emit(LevelTrace, msg, kv...) }
