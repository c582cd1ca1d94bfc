package logrusadapter_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Usub-development/upq/upqlog"
	"github.com/Usub-development/upq/upqlog/logrusadapter"
)

func TestLoggerMapsEveryLevel(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.TraceLevel)
	l := logrusadapter.NewLogger(base)

	cases := []struct {
		lvl  upqlog.LogLevel
		want logrus.Level
	}{
		{upqlog.LogLevelTrace, logrus.DebugLevel},
		{upqlog.LogLevelDebug, logrus.DebugLevel},
		{upqlog.LogLevelInfo, logrus.InfoLevel},
		{upqlog.LogLevelWarn, logrus.WarnLevel},
		{upqlog.LogLevelError, logrus.ErrorLevel},
	}

	for _, c := range cases {
		l.Log(context.Background(), c.lvl, "event", map[string]any{"k": "v"})
	}

	entries := hook.AllEntries()
	require.Len(t, entries, len(cases))
	for i, c := range cases {
		assert.Equal(t, c.want, entries[i].Level)
		assert.Equal(t, "event", entries[i].Message)
	}
}

func TestLoggerFallsBackToErrorOnInvalidLevel(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.TraceLevel)
	l := logrusadapter.NewLogger(base)

	l.Log(context.Background(), upqlog.LogLevel(123), "weird", nil)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
