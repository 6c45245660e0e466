package alerter

import (
	"sync"
	"time"

	"github.com/ictengine/ictalert/internal/metrics"
	"github.com/ictengine/ictalert/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultRateLimitPer60s = 30
	DefaultDedupWindow     = 5 * time.Minute
)

// Settings configures admission and deduplication
type Settings struct {
	RateLimitPer60s int
	DedupWindow     time.Duration
	Strategy        DedupStrategy
}

// Request is a raw alert as submitted by a producer
type Request struct {
	Category string
	Severity types.Severity
	Message  string
	Symbol   string
	Metadata map[string]any
}

// Outcome describes what RecordAlert did with a request
type Outcome struct {
	Accepted   bool
	Duplicate  bool
	Notified   bool
	Alert      types.Alert
	Deliveries []Delivery
}

// Failed returns the deliveries that returned an error
func (o Outcome) Failed() []Delivery {
	var failed []Delivery
	for _, d := range o.Deliveries {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}

// Stats is a point-in-time view of manager counters
type Stats struct {
	Accepted      int64  `json:"accepted"`
	RateLimited   int64  `json:"rate_limited"`
	Deduplicated  int64  `json:"deduplicated"`
	Renotified    int64  `json:"renotified"`
	DedupEntries  int    `json:"dedup_entries"`
	WindowCount   int    `json:"window_count"`
	RateLimit     int    `json:"rate_limit_per_60s"`
	ChannelCount  int    `json:"channel_count"`
	DedupStrategy string `json:"dedup_strategy"`
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics attaches Prometheus instrumentation
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = reg }
}

// Manager deduplicates, rate-limits and fans out alerts. The dedup store,
// rate window and channel list are only touched under mu; channel sends
// happen after mu is released.
type Manager struct {
	settings Settings
	logger   zerolog.Logger
	metrics  *metrics.Registry
	now      func() time.Time
	uniqueID func() string

	mu       sync.Mutex
	store    map[string]*types.Alert
	limiter  *slidingWindow
	channels []Channel
	roles    map[types.Role]Channel
	recent   RecentSource
	stats    Stats
}

// NewManager creates an alert manager. Zero settings fall back to defaults.
func NewManager(settings Settings, logger zerolog.Logger, opts ...Option) *Manager {
	if settings.RateLimitPer60s <= 0 {
		settings.RateLimitPer60s = DefaultRateLimitPer60s
	}
	if settings.DedupWindow <= 0 {
		settings.DedupWindow = DefaultDedupWindow
	}
	if settings.Strategy == "" {
		settings.Strategy = DedupCategorySymbolWindow
	}

	m := &Manager{
		settings: settings,
		logger:   logger.With().Str("component", "alert-manager").Logger(),
		now:      time.Now,
		uniqueID: newUniqueID,
		store:    make(map[string]*types.Alert),
		limiter:  newSlidingWindow(settings.RateLimitPer60s, rateWindow),
		roles:    make(map[types.Role]Channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Settings returns the effective settings
func (m *Manager) Settings() Settings {
	return m.settings
}

// RecordAlert records an alert and reports whether it was admitted by the
// rate limiter. Duplicates inside the dedup window are folded into the
// stored alert and only fanned out again when high or critical.
func (m *Manager) RecordAlert(category string, severity types.Severity, message, symbol string, metadata map[string]any) bool {
	return m.Record(Request{
		Category: category,
		Severity: severity,
		Message:  message,
		Symbol:   symbol,
		Metadata: metadata,
	}).Accepted
}

// Record is RecordAlert with the per-channel delivery results
func (m *Manager) Record(req Request) Outcome {
	now := m.now()

	m.mu.Lock()
	if !m.limiter.Allow(now) {
		m.stats.RateLimited++
		m.mu.Unlock()

		m.metrics.RateLimited()
		m.logger.Warn().
			Str("category", req.Category).
			Str("severity", string(req.Severity)).
			Int("limit", m.settings.RateLimitPer60s).
			Msg("Alert rate limit reached, dropping alert")
		return Outcome{}
	}

	m.pruneLocked(now)

	key := dedupKey(m.settings.Strategy, req, m.uniqueID)
	out := Outcome{Accepted: true, Notified: true}

	if existing, ok := m.store[key]; ok {
		existing.Count++
		existing.Metadata["last_timestamp"] = types.UnixSeconds(now)
		existing.Metadata["duplicate_count"] = existing.Count

		out.Duplicate = true
		out.Notified = req.Severity.AtLeast(types.SeverityHigh)
		m.stats.Deduplicated++
		if out.Notified {
			m.stats.Renotified++
		}
		out.Alert = existing.Clone()
	} else {
		alert := &types.Alert{
			Timestamp: now,
			Category:  req.Category,
			Severity:  req.Severity,
			Message:   req.Message,
			Symbol:    req.Symbol,
			Metadata:  make(map[string]any, len(req.Metadata)),
			Count:     1,
		}
		for k, v := range req.Metadata {
			alert.Metadata[k] = v
		}
		m.store[key] = alert
		out.Alert = alert.Clone()
	}
	m.stats.Accepted++

	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	entries := len(m.store)
	m.mu.Unlock()

	m.metrics.Recorded(req.Category, string(req.Severity))
	m.metrics.SetDedupEntries(entries)

	if out.Duplicate {
		m.metrics.Duplicate(string(req.Severity), out.Notified)
		m.logger.Debug().
			Str("key", key).
			Int("count", out.Alert.Count).
			Bool("renotify", out.Notified).
			Msg("Duplicate alert folded")
	}

	if out.Notified {
		out.Deliveries = m.fanOut(out.Alert, channels)
	}
	return out
}

// pruneLocked drops entries whose first occurrence left the dedup window
func (m *Manager) pruneLocked(now time.Time) {
	for key, alert := range m.store {
		if now.Sub(alert.Timestamp) > m.settings.DedupWindow {
			delete(m.store, key)
		}
	}
}

// AddChannel appends a channel unless it is already registered. The first
// channel of each role also becomes the lookup target for that role.
func (m *Manager) AddChannel(ch Channel) {
	if ch == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.channels {
		if existing == ch {
			return
		}
	}
	m.channels = append(m.channels, ch)

	role := ch.Role()
	if _, taken := m.roles[role]; !taken {
		m.roles[role] = ch
		if role == types.RoleMemory {
			if src, ok := ch.(RecentSource); ok {
				m.recent = src
			}
		}
	}

	m.logger.Info().
		Str("channel", ch.Name()).
		Str("role", string(role)).
		Msg("Channel registered")
}

// Channels returns the registered channels in fan-out order
func (m *Manager) Channels() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Channel, len(m.channels))
	copy(out, m.channels)
	return out
}

// ChannelFor returns the channel registered for a role
func (m *Manager) ChannelFor(role types.Role) (Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.roles[role]
	return ch, ok
}

// AddCallback registers fn on the callback channel. It returns false when
// no callback channel is registered or the name is already taken.
func (m *Manager) AddCallback(name string, fn func(types.Alert) error) bool {
	ch, ok := m.ChannelFor(types.RoleCallback)
	if !ok {
		m.logger.Warn().Str("callback", name).Msg("No callback channel registered")
		return false
	}
	reg, ok := ch.(CallbackRegistry)
	if !ok {
		return false
	}
	return reg.Add(name, fn)
}

// GetRecent returns up to limit recent alerts from the memory channel
func (m *Manager) GetRecent(limit int) []types.Record {
	m.mu.Lock()
	src := m.recent
	m.mu.Unlock()

	if src == nil || limit <= 0 {
		return []types.Record{}
	}
	return src.Recent(limit)
}

// Stats returns the current counters
func (m *Manager) Stats() Stats {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(now)
	s := m.stats
	s.DedupEntries = len(m.store)
	s.WindowCount = m.limiter.Count(now)
	s.RateLimit = m.settings.RateLimitPer60s
	s.ChannelCount = len(m.channels)
	s.DedupStrategy = string(m.settings.Strategy)
	return s
}

// Clear drops the dedup store and the rate window
func (m *Manager) Clear() {
	m.mu.Lock()
	m.store = make(map[string]*types.Alert)
	m.limiter.Reset()
	m.mu.Unlock()

	m.metrics.SetDedupEntries(0)
	m.logger.Info().Msg("Alert state cleared")
}
