package zapadapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Usub-development/upq/upqlog"
	"github.com/Usub-development/upq/upqlog/zapadapter"
)

func TestLoggerMapsEveryLevel(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	l := zapadapter.NewLogger(zap.New(core))

	cases := []struct {
		lvl  upqlog.LogLevel
		want zapcore.Level
	}{
		{upqlog.LogLevelTrace, zapcore.DebugLevel},
		{upqlog.LogLevelDebug, zapcore.DebugLevel},
		{upqlog.LogLevelInfo, zapcore.InfoLevel},
		{upqlog.LogLevelWarn, zapcore.WarnLevel},
		{upqlog.LogLevelError, zapcore.ErrorLevel},
	}

	for _, c := range cases {
		l.Log(context.Background(), c.lvl, "event", map[string]any{"k": "v"})
	}

	entries := recorded.All()
	require.Len(t, entries, len(cases))
	for i, c := range cases {
		assert.Equal(t, c.want, entries[i].Level)
		assert.Equal(t, "event", entries[i].Message)
	}
}

func TestLoggerHandlesNilData(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	l := zapadapter.NewLogger(zap.New(core))

	assert.NotPanics(t, func() {
		l.Log(context.Background(), upqlog.LogLevelInfo, "no data", nil)
	})
	require.Len(t, recorded.All(), 1)
}

func TestLoggerFallsBackToErrorwOnInvalidLevel(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	l := zapadapter.NewLogger(zap.New(core))

	l.Log(context.Background(), upqlog.LogLevel(123), "weird", nil)
	require.Len(t, recorded.All(), 1)
	assert.Equal(t, zapcore.ErrorLevel, recorded.All()[0].Level)
}
