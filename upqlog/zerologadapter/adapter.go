// Package zerologadapter provides an upqlog.Logger that writes to a
// github.com/rs/zerolog.Logger. Grounded on
// jackc-pgx/log/zerologadapter/adapter.go, retargeted at upqlog's
// Logger/LogLevel instead of pgx's.
package zerologadapter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Usub-development/upq/upqlog"
)

// Logger adapts zerolog.Logger to upqlog.Logger.
type Logger struct {
	logger     zerolog.Logger
	skipModule bool
}

type option func(*Logger)

// WithoutModule disables adding module:upq to the logger context.
func WithoutModule() option {
	return func(l *Logger) { l.skipModule = true }
}

// NewLogger wraps logger as an upqlog.Logger.
func NewLogger(logger zerolog.Logger, options ...option) *Logger {
	l := &Logger{logger: logger}
	for _, opt := range options {
		opt(l)
	}
	if !l.skipModule {
		l.logger = l.logger.With().Str("module", "upq").Logger()
	}
	return l
}

func (l *Logger) Log(ctx context.Context, level upqlog.LogLevel, msg string, data map[string]any) {
	var zlevel zerolog.Level
	switch level {
	case upqlog.LogLevelNone:
		zlevel = zerolog.NoLevel
	case upqlog.LogLevelError:
		zlevel = zerolog.ErrorLevel
	case upqlog.LogLevelWarn:
		zlevel = zerolog.WarnLevel
	case upqlog.LogLevelInfo:
		zlevel = zerolog.InfoLevel
	case upqlog.LogLevelDebug, upqlog.LogLevelTrace:
		zlevel = zerolog.DebugLevel
	default:
		zlevel = zerolog.DebugLevel
	}

	event := l.logger.WithLevel(zlevel)
	if event.Enabled() {
		event.Fields(data).Msg(msg)
	}
}
