package notifier

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ictengine/ictalert/internal/types"
)

// ConsoleChannel prints alerts at or above a minimum severity
type ConsoleChannel struct {
	out         io.Writer
	minSeverity types.Severity
	mu          sync.Mutex
}

// NewConsoleChannel writes to out, or stdout when out is nil
func NewConsoleChannel(out io.Writer, minSeverity types.Severity) *ConsoleChannel {
	if out == nil {
		out = os.Stdout
	}
	if !minSeverity.Valid() {
		minSeverity = types.SeverityLow
	}
	return &ConsoleChannel{out: out, minSeverity: minSeverity}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Role() types.Role { return types.RoleConsole }

func (c *ConsoleChannel) Send(alert types.Alert) error {
	if !alert.Severity.AtLeast(c.minSeverity) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, formatLine(alert))
	return err
}

func formatLine(alert types.Alert) string {
	symbol := ""
	if alert.Symbol != "" {
		symbol = " " + alert.Symbol
	}
	line := fmt.Sprintf("%s [%s] %s%s: %s",
		alert.Timestamp.Local().Format("15:04:05"),
		severityTag(alert.Severity), alert.Category, symbol, alert.Message)
	if alert.Count > 1 {
		line += fmt.Sprintf(" (x%d)", alert.Count)
	}
	return line
}

func severityTag(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "CRIT"
	case types.SeverityHigh:
		return "HIGH"
	case types.SeverityMedium:
		return "MED"
	default:
		return "LOW"
	}
}
