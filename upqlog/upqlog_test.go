package upqlog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Usub-development/upq/upqlog"
)

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "trace", upqlog.LogLevelTrace.String())
	assert.Equal(t, "debug", upqlog.LogLevelDebug.String())
	assert.Equal(t, "info", upqlog.LogLevelInfo.String())
	assert.Equal(t, "warn", upqlog.LogLevelWarn.String())
	assert.Equal(t, "error", upqlog.LogLevelError.String())
	assert.Equal(t, "none", upqlog.LogLevelNone.String())
	assert.Contains(t, upqlog.LogLevel(42).String(), "invalid level")
}

func TestNopLoggerDiscardsSilently(t *testing.T) {
	assert.NotPanics(t, func() {
		upqlog.NopLogger.Log(context.Background(), upqlog.LogLevelError, "boom", nil)
	})
}

func TestFacadeZeroValueNeverLogs(t *testing.T) {
	var f upqlog.Facade
	called := false
	f.Logger = upqlog.LoggerFunc(func(ctx context.Context, lvl upqlog.LogLevel, msg string, data map[string]any) {
		called = true
	})
	// LogLevel is still its zero value (0), below every real level.
	f.Log(context.Background(), upqlog.LogLevelError, "should not fire", nil)
	assert.False(t, called)
}

func TestFacadeLogsAtOrAboveConfiguredLevel(t *testing.T) {
	var received []upqlog.LogLevel
	f := upqlog.Facade{
		Logger: upqlog.LoggerFunc(func(ctx context.Context, lvl upqlog.LogLevel, msg string, data map[string]any) {
			received = append(received, lvl)
		}),
		LogLevel: upqlog.LogLevelWarn,
	}

	f.Log(context.Background(), upqlog.LogLevelError, "error event", nil)
	f.Log(context.Background(), upqlog.LogLevelWarn, "warn event", nil)
	f.Log(context.Background(), upqlog.LogLevelInfo, "info event, below threshold", nil)

	require.Len(t, received, 2)
	assert.Equal(t, upqlog.LogLevelError, received[0])
	assert.Equal(t, upqlog.LogLevelWarn, received[1])
}

func TestFacadeNilDataBecomesEmptyMap(t *testing.T) {
	var got map[string]any
	f := upqlog.Facade{
		Logger: upqlog.LoggerFunc(func(ctx context.Context, lvl upqlog.LogLevel, msg string, data map[string]any) {
			got = data
		}),
		LogLevel: upqlog.LogLevelInfo,
	}
	f.Log(context.Background(), upqlog.LogLevelInfo, "msg", nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoggerFuncSatisfiesLoggerInterface(t *testing.T) {
	var l upqlog.Logger = upqlog.LoggerFunc(func(ctx context.Context, lvl upqlog.LogLevel, msg string, data map[string]any) {})
	assert.NotNil(t, l)
}
