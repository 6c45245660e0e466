package evaluator

import (
	"time"

	"github.com/ictengine/ictalert/internal/types"
)

// Level is the breach level of a threshold evaluation
type Level string

const (
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

// Severity maps a breach level onto the alert severity scale
func (l Level) Severity() types.Severity {
	switch l {
	case LevelEmergency:
		return types.SeverityCritical
	case LevelCritical:
		return types.SeverityHigh
	case LevelWarning:
		return types.SeverityMedium
	}
	return types.SeverityLow
}

// Comparison operators
const (
	Above = ">"
	Below = "<"
)

// Threshold configures the levels of one alert type
type Threshold struct {
	AlertType        string
	Section          string
	Unit             string
	Warning          *float64
	Critical         *float64
	Emergency        *float64
	Comparison       string
	EvaluationWindow time.Duration
	Cooldown         time.Duration
	Enabled          bool
}

// breached reports whether value crosses limit under the threshold's operator
func (t Threshold) breached(value, limit float64) bool {
	if t.Comparison == Below {
		return value < limit
	}
	return value > limit
}

// levels returns the configured levels from most to least severe
func (t Threshold) levels() []levelLimit {
	out := make([]levelLimit, 0, 3)
	if t.Emergency != nil {
		out = append(out, levelLimit{LevelEmergency, *t.Emergency})
	}
	if t.Critical != nil {
		out = append(out, levelLimit{LevelCritical, *t.Critical})
	}
	if t.Warning != nil {
		out = append(out, levelLimit{LevelWarning, *t.Warning})
	}
	return out
}

type levelLimit struct {
	level Level
	limit float64
}

// Breach is an immutable record of one threshold violation
type Breach struct {
	AlertID        string         `json:"alert_id"`
	AlertType      string         `json:"alert_type"`
	Level          Level          `json:"level"`
	ThresholdValue float64        `json:"threshold_value"`
	ActualValue    float64        `json:"actual_value"`
	Timestamp      time.Time      `json:"timestamp"`
	Component      string         `json:"component"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Float is a helper for building thresholds in code
func Float(v float64) *float64 {
	return &v
}
