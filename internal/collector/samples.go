package collector

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
)

// Subscription maps a telemetry path onto a threshold alert type. An empty
// Component is taken from the "name" key of the matched path, falling back
// to the target address.
type Subscription struct {
	Path      string
	AlertType string
	Component string
}

// Sample is one numeric telemetry reading ready for threshold evaluation
type Sample struct {
	Path      string
	AlertType string
	Component string
	Value     float64
	Timestamp time.Time
}

type matchEntry struct {
	sub  Subscription
	path *gnmi.Path
}

// matcher resolves notification paths to subscriptions by element prefix.
// A key of "*" in a subscription path matches any value.
type matcher struct {
	entries []matchEntry
}

func newMatcher(subs []Subscription) (*matcher, error) {
	m := &matcher{entries: make([]matchEntry, 0, len(subs))}
	for _, sub := range subs {
		if sub.AlertType == "" {
			return nil, fmt.Errorf("subscription %s: alert type is required", sub.Path)
		}
		p, err := parsePath(sub.Path)
		if err != nil {
			return nil, fmt.Errorf("subscription %s: %w", sub.Path, err)
		}
		m.entries = append(m.entries, matchEntry{sub: sub, path: p})
	}
	return m, nil
}

func (m *matcher) match(elems []*gnmi.PathElem) (Subscription, bool) {
	for _, e := range m.entries {
		if prefixMatch(e.path.Elem, elems) {
			return e.sub, true
		}
	}
	return Subscription{}, false
}

func prefixMatch(pattern, elems []*gnmi.PathElem) bool {
	if len(pattern) > len(elems) {
		return false
	}
	for i, p := range pattern {
		if p.Name != elems[i].Name {
			return false
		}
		for k, v := range p.Key {
			if v == "*" {
				continue
			}
			if elems[i].Key[k] != v {
				return false
			}
		}
	}
	return true
}

// extract returns a sample for every numeric update matching a subscription
func (c *Collector) extract(notif *gnmi.Notification) []Sample {
	if notif == nil {
		return nil
	}
	ts := time.Unix(0, notif.Timestamp)
	if notif.Timestamp == 0 {
		ts = time.Now()
	}

	var samples []Sample
	for _, update := range notif.Update {
		elems := joinElems(notif.Prefix, update.Path)
		fullPath := pathToString(&gnmi.Path{Elem: elems})

		sub, ok := c.matcher.match(elems)
		if !ok {
			continue
		}
		value, ok := numericValue(update.Val)
		if !ok {
			c.logger.Debug().
				Str("path", fullPath).
				Msg("Ignoring non-numeric telemetry value")
			continue
		}

		component := sub.Component
		if component == "" {
			component = nameKey(elems)
		}
		if component == "" {
			component = c.opts.Address
		}

		samples = append(samples, Sample{
			Path:      fullPath,
			AlertType: sub.AlertType,
			Component: component,
			Value:     value,
			Timestamp: ts,
		})
	}
	return samples
}

func joinElems(prefix, path *gnmi.Path) []*gnmi.PathElem {
	var elems []*gnmi.PathElem
	if prefix != nil {
		elems = append(elems, prefix.Elem...)
	}
	if path != nil {
		elems = append(elems, path.Elem...)
	}
	return elems
}

// nameKey returns the innermost "name" key along the path
func nameKey(elems []*gnmi.PathElem) string {
	for i := len(elems) - 1; i >= 0; i-- {
		if v, ok := elems[i].Key["name"]; ok && v != "*" {
			return v
		}
	}
	return ""
}

// numericValue converts a TypedValue to float64. JSON encodings are
// accepted when they hold a bare or quoted number.
func numericValue(value *gnmi.TypedValue) (float64, bool) {
	if value == nil {
		return 0, false
	}
	switch v := value.Value.(type) {
	case *gnmi.TypedValue_IntVal:
		return float64(v.IntVal), true
	case *gnmi.TypedValue_UintVal:
		return float64(v.UintVal), true
	case *gnmi.TypedValue_DoubleVal:
		return v.DoubleVal, true
	case *gnmi.TypedValue_FloatVal:
		return float64(v.FloatVal), true
	case *gnmi.TypedValue_DecimalVal:
		if v.DecimalVal == nil {
			return 0, false
		}
		return float64(v.DecimalVal.Digits) / math.Pow10(int(v.DecimalVal.Precision)), true
	case *gnmi.TypedValue_JsonVal:
		return parseJSONNumber(v.JsonVal)
	case *gnmi.TypedValue_JsonIetfVal:
		return parseJSONNumber(v.JsonIetfVal)
	case *gnmi.TypedValue_StringVal:
		return parseFinite(strings.TrimSpace(v.StringVal))
	}
	return 0, false
}

func parseJSONNumber(raw []byte) (float64, bool) {
	return parseFinite(strings.Trim(strings.TrimSpace(string(raw)), `"`))
}

// parseFinite rejects NaN and the infinities
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parsePath parses a string path into a gNMI Path
func parsePath(path string) (*gnmi.Path, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("path is empty")
	}
	parts := strings.Split(trimmed, "/")
	elems := make([]*gnmi.PathElem, 0, len(parts))
	for _, part := range parts {
		name, keys, err := parsePathElem(part)
		if err != nil {
			return nil, err
		}
		elems = append(elems, &gnmi.PathElem{Name: name, Key: keys})
	}
	return &gnmi.Path{Elem: elems}, nil
}

// parsePathElem parses a path element with optional [key=value] selectors
func parsePathElem(segment string) (string, map[string]string, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "", nil, fmt.Errorf("path segment empty")
	}
	name := segment
	keys := map[string]string{}
	for {
		open := strings.Index(name, "[")
		if open == -1 {
			break
		}
		end := strings.Index(name[open:], "]")
		if end == -1 {
			return "", nil, fmt.Errorf("invalid key selector in %s", segment)
		}
		end += open
		kv := strings.SplitN(name[open+1:end], "=", 2)
		if len(kv) != 2 {
			return "", nil, fmt.Errorf("invalid key selector %s", name[open+1:end])
		}
		keys[kv[0]] = kv[1]
		name = name[:open] + name[end+1:]
	}
	if len(keys) == 0 {
		keys = nil
	}
	return name, keys, nil
}

// pathToString converts a gNMI Path to its string form with sorted keys
func pathToString(path *gnmi.Path) string {
	if path == nil {
		return ""
	}
	var b strings.Builder
	for _, elem := range path.Elem {
		b.WriteString("/")
		b.WriteString(elem.Name)
		if len(elem.Key) == 0 {
			continue
		}
		keys := make([]string, 0, len(elem.Key))
		for k := range elem.Key {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "[%s=%s]", k, elem.Key[k])
		}
	}
	return b.String()
}
