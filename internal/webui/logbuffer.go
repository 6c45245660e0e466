package webui

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ictengine/ictalert/internal/ringbuf"
	"github.com/rs/zerolog"
)

// LogEntry is one captured zerolog line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogBuffer captures the process log for the /api/logs endpoint. It is
// installed next to stdout behind an io.MultiWriter.
type LogBuffer struct {
	entries *ringbuf.Buffer[LogEntry]
	now     func() time.Time
}

// NewLogBuffer creates a log buffer holding the last size lines
func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: ringbuf.New[LogEntry](size),
		now:     time.Now,
	}
}

// Write implements io.Writer. zerolog hands over one JSON object per call.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	raw := strings.TrimRight(string(p), "\n")
	entry := LogEntry{
		Timestamp: lb.now(),
		Level:     zerolog.InfoLevel.String(),
		Message:   raw,
		Raw:       raw,
	}

	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err == nil {
		if v, ok := fields[zerolog.LevelFieldName].(string); ok {
			entry.Level = v
		}
		if v, ok := fields[zerolog.MessageFieldName].(string); ok {
			entry.Message = v
		}
		if v, ok := fields["component"].(string); ok {
			entry.Component = v
		}
	}

	lb.entries.Push(entry)
	return len(p), nil
}

// Query selects log entries
type Query struct {
	Limit     int
	MinLevel  zerolog.Level
	Component string
}

// Entries returns all captured entries in chronological order
func (lb *LogBuffer) Entries() []LogEntry {
	return lb.entries.Items()
}

// Recent returns the newest entries matching q, oldest first
func (lb *LogBuffer) Recent(q Query) []LogEntry {
	all := lb.entries.Items()
	out := make([]LogEntry, 0, len(all))
	for _, e := range all {
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if lvl, err := zerolog.ParseLevel(e.Level); err == nil && lvl < q.MinLevel {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Clear drops all entries
func (lb *LogBuffer) Clear() {
	lb.entries.Clear()
}
