package evaluator

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sections are the top-level keys read from the threshold file
var Sections = []string{
	"performance_alerts",
	"trading_alerts",
	"connectivity_alerts",
	"engine_alerts",
	"risk_alerts",
}

const (
	defaultCooldown         = 5 * time.Minute
	defaultEvaluationWindow = 60 * time.Second
)

// ParseThresholds decodes a threshold file. Sections or entries that are
// not shaped like thresholds are skipped; only a YAML syntax error fails.
func ParseThresholds(data []byte) (map[string]Threshold, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse thresholds: %w", err)
	}

	out := make(map[string]Threshold)
	for _, section := range Sections {
		entries, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for name, v := range entries {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if th, ok := parseEntry(section, name, entry); ok {
				out[name] = th
			}
		}
	}
	return out, nil
}

func parseEntry(section, name string, entry map[string]any) (Threshold, bool) {
	th := Threshold{
		AlertType:        name,
		Section:          section,
		EvaluationWindow: defaultEvaluationWindow,
		Cooldown:         defaultCooldown,
		Enabled:          true,
	}

	for key, v := range entry {
		switch {
		case key == "enabled":
			b, ok := v.(bool)
			if !ok {
				return Threshold{}, false
			}
			th.Enabled = b
		case key == "comparison" || key == "operator":
			op, ok := v.(string)
			op = strings.TrimSpace(op)
			if !ok || (op != Above && op != Below) {
				return Threshold{}, false
			}
			th.Comparison = op
		case key == "evaluation_window_seconds":
			f, ok := toFloat(v)
			if !ok || f < 0 {
				return Threshold{}, false
			}
			th.EvaluationWindow = time.Duration(f * float64(time.Second))
		case key == "cooldown_minutes":
			f, ok := toFloat(v)
			if !ok || f < 0 {
				return Threshold{}, false
			}
			th.Cooldown = time.Duration(f * float64(time.Minute))
		default:
			level, unit, isLevel := splitLevelKey(key)
			if !isLevel {
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				return Threshold{}, false
			}
			if th.Unit == "" {
				th.Unit = unit
			}
			switch level {
			case LevelWarning:
				th.Warning = Float(f)
			case LevelCritical:
				th.Critical = Float(f)
			case LevelEmergency:
				th.Emergency = Float(f)
			}
		}
	}

	if th.Warning == nil && th.Critical == nil && th.Emergency == nil {
		return Threshold{}, false
	}
	if th.Comparison == "" {
		th.Comparison = inferComparison(th)
	}
	return th, true
}

// splitLevelKey splits "critical_percent" into (critical, percent)
func splitLevelKey(key string) (Level, string, bool) {
	for _, level := range []Level{LevelWarning, LevelCritical, LevelEmergency} {
		prefix := string(level)
		if key == prefix {
			return level, "", true
		}
		if strings.HasPrefix(key, prefix+"_") {
			return level, strings.TrimPrefix(key, prefix+"_"), true
		}
	}
	return "", "", false
}

// inferComparison treats thresholds that shrink as severity grows
// (fill rates, margin levels) as lower-is-worse
func inferComparison(th Threshold) string {
	ordered := make([]float64, 0, 3)
	for _, p := range []*float64{th.Warning, th.Critical, th.Emergency} {
		if p != nil {
			ordered = append(ordered, *p)
		}
	}
	if len(ordered) >= 2 && ordered[0] > ordered[len(ordered)-1] {
		return Below
	}
	return Above
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
