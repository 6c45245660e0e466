package types

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordinal importance of an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal of the severity, -1 if unknown
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// AtLeast reports whether s is as severe as min
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// ParseSeverity normalizes a severity name
func ParseSeverity(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", value)
	}
	return s, nil
}

// Role identifies what a delivery channel does, so the manager can find
// a specific channel without inspecting concrete types.
type Role string

const (
	RoleConsole  Role = "console"
	RoleFile     Role = "file"
	RoleMemory   Role = "memory"
	RoleCallback Role = "callback"
	RoleWebhook  Role = "webhook"
	RoleRedis    Role = "redis"
)

// Alert represents a recorded trading alert. Timestamp is fixed at first
// occurrence; Count and Metadata change as duplicates are absorbed.
type Alert struct {
	Timestamp time.Time
	Category  string
	Severity  Severity
	Message   string
	Symbol    string
	Metadata  map[string]any
	Count     int
}

// Clone returns a copy whose metadata can be read without holding the
// manager lock
func (a *Alert) Clone() Alert {
	out := *a
	out.Metadata = CopyMeta(a.Metadata)
	return out
}

// Record is the persisted and serialized form of an alert
type Record struct {
	Timestamp float64        `json:"timestamp"`
	Datetime  string         `json:"datetime"`
	Category  string         `json:"category"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Symbol    *string        `json:"symbol"`
	Meta      map[string]any `json:"meta"`
	Count     int            `json:"count"`
}

// ToRecord converts the alert to its wire form
func (a Alert) ToRecord() Record {
	rec := Record{
		Timestamp: UnixSeconds(a.Timestamp),
		Datetime:  a.Timestamp.Local().Format("2006-01-02T15:04:05.000000"),
		Category:  a.Category,
		Severity:  a.Severity,
		Message:   a.Message,
		Meta:      CopyMeta(a.Metadata),
		Count:     a.Count,
	}
	if a.Symbol != "" {
		symbol := a.Symbol
		rec.Symbol = &symbol
	}
	return rec
}

// Clone returns a copy of the record that shares no metadata map
func (r Record) Clone() Record {
	r.Meta = CopyMeta(r.Meta)
	return r
}

// CopyMeta returns a shallow copy of meta, never nil
func CopyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// UnixSeconds returns t as fractional seconds since the epoch
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
