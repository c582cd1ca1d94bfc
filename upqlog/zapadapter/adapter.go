// Package zapadapter provides an upqlog.Logger that writes to a
// go.uber.org/zap.Logger, following the same shape as
// zerologadapter/logrusadapter/kitlogadapter.
package zapadapter

import (
	"context"

	"go.uber.org/zap"

	"github.com/Usub-development/upq/upqlog"
)

type Logger struct {
	l *zap.SugaredLogger
}

func NewLogger(l *zap.Logger) *Logger {
	return &Logger{l: l.Sugar()}
}

func (l *Logger) Log(ctx context.Context, level upqlog.LogLevel, msg string, data map[string]any) {
	logger := l.l
	if data != nil {
		keyvals := make([]any, 0, len(data)*2)
		for k, v := range data {
			keyvals = append(keyvals, k, v)
		}
		logger = logger.With(keyvals...)
	}

	switch level {
	case upqlog.LogLevelTrace, upqlog.LogLevelDebug:
		logger.Debug(msg)
	case upqlog.LogLevelInfo:
		logger.Info(msg)
	case upqlog.LogLevelWarn:
		logger.Warn(msg)
	case upqlog.LogLevelError:
		logger.Error(msg)
	default:
		logger.Errorw(msg, "invalid_upq_log_level", level)
	}
}
