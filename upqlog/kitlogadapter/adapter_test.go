package kitlogadapter_test

import (
	"bytes"
	"context"
	"testing"

	kitlog "github.com/go-kit/log"
	"github.com/stretchr/testify/assert"

	"github.com/Usub-development/upq/upqlog"
	"github.com/Usub-development/upq/upqlog/kitlogadapter"
)

func TestLoggerWritesEveryLevelWithoutPanicking(t *testing.T) {
	var buf bytes.Buffer
	base := kitlog.NewLogfmtLogger(&buf)
	l := kitlogadapter.NewLogger(base)

	for _, lvl := range []upqlog.LogLevel{
		upqlog.LogLevelTrace,
		upqlog.LogLevelDebug,
		upqlog.LogLevelInfo,
		upqlog.LogLevelWarn,
		upqlog.LogLevelError,
		upqlog.LogLevelNone,
	} {
		assert.NotPanics(t, func() {
			l.Log(context.Background(), lvl, "event", map[string]any{"k": "v"})
		})
	}
	assert.Contains(t, buf.String(), "msg=event")
}

func TestLoggerHandlesNilData(t *testing.T) {
	var buf bytes.Buffer
	base := kitlog.NewLogfmtLogger(&buf)
	l := kitlogadapter.NewLogger(base)

	assert.NotPanics(t, func() {
		l.Log(context.Background(), upqlog.LogLevelInfo, "no data", nil)
	})
	assert.Contains(t, buf.String(), "msg=\"no data\"")
}
