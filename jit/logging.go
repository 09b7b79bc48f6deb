package jit

import "github.com/jitgraph/jitgraph/internal/jitlog"

// LogLevel re-exports internal/jitlog's severity scale.
type LogLevel = jitlog.Level

const (
	LogError = jitlog.LevelError
	LogWarn  = jitlog.LevelWarn
	LogInfo  = jitlog.LevelInfo
	LogDebug = jitlog.LevelDebug
	LogTrace = jitlog.LevelTrace
)

// SetLogLevel gates what the runtime's single logging sink emits. Unlike
// every other jit function, this is valid before Init: a caller turning on
// LogDebug wants to see Init's own setup messages.
func SetLogLevel(level LogLevel) {
	jitlog.SetLevel(level)
}

// SetLogCallback installs (or, with nil, removes) a second sink that
// receives every emitted log line alongside the default one, for hosts
// embedding this runtime in their own logging pipeline.
func SetLogCallback(cb func(LogLevel, string)) {
	if cb == nil {
		jitlog.SetCallback(nil)
		return
	}
	jitlog.SetCallback(jitlog.Callback(cb))
}
