package alerter

import "github.com/ictengine/ictalert/internal/evaluator"

// RecordBreach turns a threshold breach into an alert. The alert type
// becomes the category; a "symbol" metadata entry, if present, becomes
// the symbol.
func (m *Manager) RecordBreach(b evaluator.Breach) bool {
	meta := make(map[string]any, len(b.Metadata)+5)
	for k, v := range b.Metadata {
		meta[k] = v
	}
	meta["alert_id"] = b.AlertID
	meta["level"] = string(b.Level)
	meta["component"] = b.Component
	meta["threshold_value"] = b.ThresholdValue
	meta["actual_value"] = b.ActualValue

	symbol, _ := b.Metadata["symbol"].(string)
	return m.RecordAlert(b.AlertType, b.Level.Severity(), b.Message, symbol, meta)
}
