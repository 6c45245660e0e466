package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecord_CopiesMetadata(t *testing.T) {
	alert := Alert{
		Timestamp: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Category:  "fvg",
		Severity:  SeverityHigh,
		Message:   "gap",
		Metadata:  map[string]any{"tf": "H1"},
		Count:     1,
	}

	rec := alert.ToRecord()
	rec.Meta["tf"] = "M5"
	assert.Equal(t, "H1", alert.Metadata["tf"])

	clone := rec.Clone()
	clone.Meta["extra"] = true
	assert.NotContains(t, rec.Meta, "extra")
}

func TestToRecord_NilMetadataAndSymbol(t *testing.T) {
	rec := Alert{Category: "fvg", Severity: SeverityLow}.ToRecord()
	require.NotNil(t, rec.Meta)
	assert.Empty(t, rec.Meta)
	assert.Nil(t, rec.Symbol)
}
