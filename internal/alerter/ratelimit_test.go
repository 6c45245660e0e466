package alerter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	w := newSlidingWindow(2, time.Minute)

	assert.True(t, w.Allow(start))
	assert.True(t, w.Allow(start.Add(30*time.Second)))
	assert.False(t, w.Allow(start.Add(45*time.Second)))
	assert.Equal(t, 2, w.Count(start.Add(45*time.Second)))

	// the first admission ages out exactly one window later
	assert.True(t, w.Allow(start.Add(time.Minute)))
	assert.False(t, w.Allow(start.Add(89*time.Second)))
	assert.Equal(t, 1, w.Count(start.Add(90*time.Second)))

	w.Reset()
	assert.Equal(t, 0, w.Count(start.Add(90*time.Second)))
}

func TestSlidingWindow_NoBurstAtBoundary(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	w := newSlidingWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, w.Allow(start.Add(58*time.Second)))
	}
	// a fixed window would reset here
	assert.False(t, w.Allow(start.Add(61*time.Second)))
	assert.True(t, w.Allow(start.Add(118*time.Second)))
}
