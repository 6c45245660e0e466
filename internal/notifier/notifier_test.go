package notifier

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ictengine/ictalert/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlert(severity types.Severity, message string) types.Alert {
	return types.Alert{
		Timestamp: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Category:  "fvg",
		Severity:  severity,
		Message:   message,
		Symbol:    "EURUSD",
		Metadata:  map[string]any{"timeframe": "M15"},
		Count:     1,
	}
}

func TestConsoleChannel_FiltersBySeverity(t *testing.T) {
	var buf bytes.Buffer
	ch := NewConsoleChannel(&buf, types.SeverityMedium)

	require.NoError(t, ch.Send(testAlert(types.SeverityLow, "quiet")))
	assert.Empty(t, buf.String())

	require.NoError(t, ch.Send(testAlert(types.SeverityHigh, "bullish gap filled")))
	assert.Contains(t, buf.String(), "[HIGH] fvg EURUSD: bullish gap filled")
}

func TestConsoleChannel_ShowsCount(t *testing.T) {
	var buf bytes.Buffer
	ch := NewConsoleChannel(&buf, "")

	alert := testAlert(types.SeverityLow, "repeat")
	alert.Count = 4
	require.NoError(t, ch.Send(alert))
	assert.Contains(t, buf.String(), "(x4)")
}

func TestMemoryChannel_BoundedSnapshot(t *testing.T) {
	ch := NewMemoryChannel(2)
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, ch.Send(testAlert(types.SeverityLow, msg)))
	}

	snap := ch.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "two", snap[0].Message)
	assert.Equal(t, "three", snap[1].Message)
	require.NotNil(t, snap[1].Symbol)
	assert.Equal(t, "EURUSD", *snap[1].Symbol)

	recent := ch.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "three", recent[0].Message)
	assert.Equal(t, types.RoleMemory, ch.Role())
}

func TestMemoryChannel_DefaultLimit(t *testing.T) {
	ch := NewMemoryChannel(0)
	assert.Equal(t, DefaultMemoryLimit, ch.buffer.Cap())
}

func TestCallbackChannel_IsolatesFailures(t *testing.T) {
	ch := NewCallbackChannel(zerolog.Nop())

	var calls []string
	require.True(t, ch.Add("first", func(types.Alert) error {
		calls = append(calls, "first")
		return errors.New("dashboard offline")
	}))
	require.True(t, ch.Add("panics", func(types.Alert) error {
		calls = append(calls, "panics")
		panic("nil map")
	}))
	require.True(t, ch.Add("last", func(a types.Alert) error {
		calls = append(calls, "last:"+a.Message)
		return nil
	}))

	err := ch.Send(testAlert(types.SeverityHigh, "choch"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dashboard offline")
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []string{"first", "panics", "last:choch"}, calls)
}

func TestCallbackChannel_DeduplicatesByName(t *testing.T) {
	ch := NewCallbackChannel(zerolog.Nop())
	noop := func(types.Alert) error { return nil }

	assert.True(t, ch.Add("ui", noop))
	assert.False(t, ch.Add("ui", noop))
	assert.False(t, ch.Add("nil", nil))
	assert.True(t, ch.Add("log", noop))
	assert.Equal(t, []string{"ui", "log"}, ch.Names())

	assert.True(t, ch.Remove("ui"))
	assert.False(t, ch.Remove("ui"))
	assert.Equal(t, []string{"log"}, ch.Names())
	assert.NoError(t, ch.Send(testAlert(types.SeverityLow, "ok")))
}
