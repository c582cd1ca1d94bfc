// Package logrusadapter provides an upqlog.Logger that writes to a
// github.com/sirupsen/logrus.Logger. Grounded on
// jackc-pgx/log/logrusadapter/adapter.go.
package logrusadapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Usub-development/upq/upqlog"
)

type Logger struct {
	l *logrus.Logger
}

func NewLogger(l *logrus.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level upqlog.LogLevel, msg string, data map[string]any) {
	var logger logrus.FieldLogger = l.l
	if data != nil {
		logger = l.l.WithFields(data)
	}

	switch level {
	case upqlog.LogLevelTrace:
		logger.WithField("upq_log_level", level).Debug(msg)
	case upqlog.LogLevelDebug:
		logger.Debug(msg)
	case upqlog.LogLevelInfo:
		logger.Info(msg)
	case upqlog.LogLevelWarn:
		logger.Warn(msg)
	case upqlog.LogLevelError:
		logger.Error(msg)
	default:
		logger.WithField("invalid_upq_log_level", level).Error(msg)
	}
}
