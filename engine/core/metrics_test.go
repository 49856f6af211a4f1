package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverageFrameTime(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 30; i++ {
		m.Update(0.02)
	}
	// 30 frames of 20ms is 0.6s, past one update interval
	assert.InDelta(t, 0.02, m.AverageFrameTimeSeconds(), 1e-9)
	assert.InDelta(t, 20.0, m.FrameTime(), 1e-9)
}

func TestMetricsNoAverageBeforeInterval(t *testing.T) {
	m := NewMetrics()
	m.Update(0.1)
	assert.Zero(t, m.AverageFrameTimeSeconds())
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("warn")
	assert.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
