package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultHealthConfig(t *testing.T) {
	hc := defaultHealthConfig()
	assert.Equal(t, 10*time.Minute, hc.Interval)
	assert.Equal(t, "SELECT 1", hc.Probe)
	assert.Equal(t, 4, hc.SampleN)
}

func TestNewOverridesHealthConfigWhenProvided(t *testing.T) {
	custom := &HealthConfig{Interval: time.Second, Probe: "SELECT 2", SampleN: 1}
	pl := New(nil, 5, custom)
	assert.Equal(t, *custom, pl.health)
	assert.EqualValues(t, 5, pl.maxPoolSize)
}

func TestNewFallsBackToDefaultHealthConfig(t *testing.T) {
	pl := New(nil, 10, nil)
	assert.Equal(t, defaultHealthConfig(), pl.health)
}

func TestStatsZeroValue(t *testing.T) {
	var s Stats
	assert.Zero(t, s.Checked.Load())
	assert.Zero(t, s.Alive.Load())
	assert.Zero(t, s.Reconnected.Load())
}
