// Package kitlogadapter provides an upqlog.Logger that writes to a
// github.com/go-kit/log.Logger. Grounded on
// jackc-pgx/log/kitlogadapter/adapter.go, retargeted at the go-kit/log
// module already in go.mod instead of go-kit/kit/log.
package kitlogadapter

import (
	"context"

	kitlog "github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"

	"github.com/Usub-development/upq/upqlog"
)

type Logger struct {
	l kitlog.Logger
}

func NewLogger(l kitlog.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level upqlog.LogLevel, msg string, data map[string]any) {
	logger := l.l
	if data != nil {
		keyvals := make([]any, 0, len(data)*2)
		for k, v := range data {
			keyvals = append(keyvals, k, v)
		}
		logger = kitlog.With(logger, keyvals...)
	}

	switch level {
	case upqlog.LogLevelTrace:
		logger.Log("upq_log_level", level, "msg", msg)
	case upqlog.LogLevelDebug:
		kitlevel.Debug(logger).Log("msg", msg)
	case upqlog.LogLevelInfo:
		kitlevel.Info(logger).Log("msg", msg)
	case upqlog.LogLevelWarn:
		kitlevel.Warn(logger).Log("msg", msg)
	case upqlog.LogLevelError:
		kitlevel.Error(logger).Log("msg", msg)
	default:
		logger.Log("invalid_upq_log_level", level, "error", msg)
	}
}
