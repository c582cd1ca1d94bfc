// Package upqlog is the logging facade used throughout upq, following
// tracelog.go's Logger/LoggerFunc/LogLevel shape with concrete sinks
// supplied by adapter sub-packages (zerologadapter, zapadapter,
// logrusadapter, kitlogadapter). No sink is wired by default.
package upqlog

import (
	"context"
	"fmt"
)

// LogLevel is upq's logging verbosity, mirroring tracelog.LogLevel.
type LogLevel int

const (
	LogLevelTrace = LogLevel(6)
	LogLevelDebug = LogLevel(5)
	LogLevelInfo  = LogLevel(4)
	LogLevelWarn  = LogLevel(3)
	LogLevelError = LogLevel(2)
	LogLevelNone  = LogLevel(1)
)

func (ll LogLevel) String() string {
	switch ll {
	case LogLevelTrace:
		return "trace"
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelNone:
		return "none"
	default:
		return fmt.Sprintf("invalid level %d", ll)
	}
}

// Logger is the interface every sink (zerolog, zap, logrus, go-kit)
// implements.
type Logger interface {
	Log(ctx context.Context, level LogLevel, msg string, data map[string]any)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(ctx context.Context, level LogLevel, msg string, data map[string]any)

func (f LoggerFunc) Log(ctx context.Context, level LogLevel, msg string, data map[string]any) {
	f(ctx, level, msg, data)
}

// NopLogger discards everything. A zero-value Facade logs nothing without
// it, since its Logger is nil.
var NopLogger Logger = LoggerFunc(func(context.Context, LogLevel, string, map[string]any) {})

// Facade wraps a Logger with a minimum level filter, used by pool and
// router to emit structured events without depending on a concrete sink.
type Facade struct {
	Logger   Logger
	LogLevel LogLevel
}

func (f *Facade) shouldLog(lvl LogLevel) bool {
	return f.Logger != nil && f.LogLevel >= lvl
}

// Log emits one event if lvl is at or above the facade's configured
// level.
func (f *Facade) Log(ctx context.Context, lvl LogLevel, msg string, data map[string]any) {
	if !f.shouldLog(lvl) {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	f.Logger.Log(ctx, lvl, msg, data)
}
