package zerologadapter_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Usub-development/upq/upqlog"
	"github.com/Usub-development/upq/upqlog/zerologadapter"
)

func TestLoggerWritesEveryLevelWithoutPanicking(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).Level(zerolog.TraceLevel)
	l := zerologadapter.NewLogger(base)

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
	assert.Contains(t, buf.String(), "\"module\":\"upq\"")
}

func TestWithoutModuleOmitsModuleField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).Level(zerolog.TraceLevel)
	l := zerologadapter.NewLogger(base, zerologadapter.WithoutModule())

	l.Log(context.Background(), upqlog.LogLevelInfo, "event", nil)
	assert.NotContains(t, buf.String(), "\"module\":\"upq\"")
}
