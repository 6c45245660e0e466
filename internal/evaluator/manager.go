package evaluator

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ictengine/ictalert/internal/metrics"
	"github.com/ictengine/ictalert/internal/ringbuf"
	"github.com/ictengine/ictalert/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	DefaultHistorySize   = 1000
	DefaultCheckInterval = 30 * time.Second
)

// Cooldown is an active suppression of one alert type on one component
type Cooldown struct {
	AlertType string    `json:"alert_type"`
	Component string    `json:"component"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Option customizes a ThresholdManager
type Option func(*ThresholdManager)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(m *ThresholdManager) { m.now = now }
}

// WithMetrics attaches Prometheus instrumentation
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *ThresholdManager) { m.metrics = reg }
}

// WithScheduler shares a scheduler instead of starting a private one
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(m *ThresholdManager) { m.sched = s }
}

// WithCheckInterval sets how often the config file mtime is checked
func WithCheckInterval(d time.Duration) Option {
	return func(m *ThresholdManager) { m.checkInterval = d }
}

// WithHistorySize bounds the breach history
func WithHistorySize(n int) Option {
	return func(m *ThresholdManager) { m.historySize = n }
}

// ThresholdManager evaluates metric values against configured thresholds
// and emits at most one breach per cooldown for each alert type and
// component pair.
type ThresholdManager struct {
	logger        zerolog.Logger
	metrics       *metrics.Registry
	now           func() time.Time
	sched         *scheduler.Scheduler
	ownsSched     bool
	checkInterval time.Duration
	historySize   int

	mu         sync.Mutex
	path       string
	lastCheck  time.Time
	modTime    time.Time
	thresholds map[string]Threshold
	cooldowns  map[string]Cooldown
	history    *ringbuf.Buffer[Breach]
	hooks      []func(Breach)
}

// NewThresholdManager creates a manager with no thresholds loaded
func NewThresholdManager(logger zerolog.Logger, opts ...Option) *ThresholdManager {
	m := &ThresholdManager{
		logger:        logger.With().Str("component", "threshold-manager").Logger(),
		now:           time.Now,
		checkInterval: DefaultCheckInterval,
		historySize:   DefaultHistorySize,
		thresholds:    make(map[string]Threshold),
		cooldowns:     make(map[string]Cooldown),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sched == nil {
		m.sched = scheduler.New(logger)
		m.ownsSched = true
	}
	m.history = ringbuf.New[Breach](m.historySize)
	return m
}

// LoadFile loads thresholds from path and remembers it for hot reload.
// On failure the previously loaded thresholds stay active.
func (m *ThresholdManager) LoadFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.path = path
	m.lastCheck = m.now()
	return m.loadLocked()
}

// LoadBytes replaces the thresholds with the parsed content of data.
// A successful load detaches the manager from any threshold file, so hot
// reload and Reload no longer apply.
func (m *ThresholdManager) LoadBytes(data []byte) error {
	parsed, err := ParseThresholds(data)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to parse thresholds, keeping previous config")
		m.metrics.Reload(err)
		return err
	}

	m.mu.Lock()
	m.thresholds = parsed
	m.path = ""
	m.modTime = time.Time{}
	m.mu.Unlock()

	m.metrics.Reload(nil)
	m.logger.Info().Int("thresholds", len(parsed)).Msg("Thresholds loaded from memory")
	return nil
}

// Reload re-reads the config file regardless of its mtime
func (m *ThresholdManager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return fmt.Errorf("no threshold file configured")
	}
	m.lastCheck = m.now()
	return m.loadLocked()
}

// Path returns the threshold file in use
func (m *ThresholdManager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func (m *ThresholdManager) loadLocked() error {
	info, err := os.Stat(m.path)
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.path).Msg("Threshold file unavailable, keeping previous config")
		m.metrics.Reload(err)
		return fmt.Errorf("stat %s: %w", m.path, err)
	}
	m.modTime = info.ModTime()

	data, err := os.ReadFile(m.path)
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.path).Msg("Failed to read threshold file, keeping previous config")
		m.metrics.Reload(err)
		return fmt.Errorf("read %s: %w", m.path, err)
	}

	parsed, err := ParseThresholds(data)
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.path).Msg("Failed to parse threshold file, keeping previous config")
		m.metrics.Reload(err)
		return err
	}

	m.thresholds = parsed
	m.metrics.Reload(nil)
	m.logger.Info().
		Str("path", m.path).
		Int("thresholds", len(parsed)).
		Msg("Thresholds loaded")
	return nil
}

// maybeReloadLocked reloads the file when the check interval has passed
// and its mtime moved
func (m *ThresholdManager) maybeReloadLocked(now time.Time) {
	if m.path == "" || now.Sub(m.lastCheck) <= m.checkInterval {
		return
	}
	m.lastCheck = now

	info, err := os.Stat(m.path)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", m.path).Msg("Threshold file stat failed")
		return
	}
	if info.ModTime().Equal(m.modTime) {
		return
	}

	m.logger.Info().Str("path", m.path).Msg("Threshold file changed, reloading")
	_ = m.loadLocked()
}

// SetThreshold adds or replaces one threshold
func (m *ThresholdManager) SetThreshold(th Threshold) {
	if th.Comparison == "" {
		th.Comparison = inferComparison(th)
	}
	m.mu.Lock()
	m.thresholds[th.AlertType] = th
	m.mu.Unlock()
}

// Thresholds returns a copy of the active thresholds
func (m *ThresholdManager) Thresholds() map[string]Threshold {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Threshold, len(m.thresholds))
	for k, v := range m.thresholds {
		out[k] = v
	}
	return out
}

// OnBreach registers a hook called after every emitted breach
func (m *ThresholdManager) OnBreach(fn func(Breach)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// EvaluateMetric compares value against the thresholds of alertType.
// It returns nil when the type is unknown or disabled, when the pair is
// cooling down, or when no level is breached. Otherwise the most severe
// breached level wins.
func (m *ThresholdManager) EvaluateMetric(alertType string, value float64, component string, metadata map[string]any) *Breach {
	now := m.now()

	m.mu.Lock()
	m.maybeReloadLocked(now)

	th, ok := m.thresholds[alertType]
	if !ok || !th.Enabled {
		m.mu.Unlock()
		return nil
	}

	key := cooldownKey(alertType, component)
	if cd, ok := m.cooldowns[key]; ok {
		if now.Before(cd.ExpiresAt) {
			m.mu.Unlock()
			m.metrics.Suppressed(alertType)
			return nil
		}
		delete(m.cooldowns, key)
	}

	var hit *levelLimit
	for _, ll := range th.levels() {
		if th.breached(value, ll.limit) {
			found := ll
			hit = &found
			break
		}
	}
	if hit == nil {
		m.mu.Unlock()
		return nil
	}

	breach := Breach{
		AlertID:        uuid.NewString(),
		AlertType:      alertType,
		Level:          hit.level,
		ThresholdValue: hit.limit,
		ActualValue:    value,
		Timestamp:      now,
		Component:      component,
		Message:        formatMessage(th, hit.level, component, value, hit.limit),
		Metadata:       breachMetadata(th, metadata),
	}

	expiresAt := now.Add(th.Cooldown)
	if th.Cooldown > 0 {
		m.cooldowns[key] = Cooldown{AlertType: alertType, Component: component, ExpiresAt: expiresAt}
	}
	m.history.Push(breach)
	hooks := make([]func(Breach), len(m.hooks))
	copy(hooks, m.hooks)
	active := len(m.cooldowns)
	m.mu.Unlock()

	if th.Cooldown > 0 {
		m.sched.Schedule(key, th.Cooldown, func() { m.release(key, expiresAt) })
	}

	m.metrics.Breach(alertType, string(hit.level))
	m.metrics.SetActiveCooldowns(active)
	m.logger.Warn().
		Str("alert_type", alertType).
		Str("level", string(hit.level)).
		Str("component", component).
		Float64("value", value).
		Float64("threshold", hit.limit).
		Dur("cooldown", th.Cooldown).
		Msg("Threshold breached")

	for _, hook := range hooks {
		hook(breach)
	}
	return &breach
}

// release ends a cooldown unless a newer breach replaced it
func (m *ThresholdManager) release(key string, expiresAt time.Time) {
	m.mu.Lock()
	cd, ok := m.cooldowns[key]
	if ok && cd.ExpiresAt.Equal(expiresAt) {
		delete(m.cooldowns, key)
	}
	active := len(m.cooldowns)
	m.mu.Unlock()

	m.metrics.SetActiveCooldowns(active)
}

// ClearCooldown ends an active cooldown early
func (m *ThresholdManager) ClearCooldown(alertType, component string) bool {
	key := cooldownKey(alertType, component)

	m.mu.Lock()
	_, ok := m.cooldowns[key]
	delete(m.cooldowns, key)
	active := len(m.cooldowns)
	m.mu.Unlock()

	m.sched.Cancel(key)
	m.metrics.SetActiveCooldowns(active)
	if ok {
		m.logger.Info().Str("alert_type", alertType).Str("component", component).Msg("Cooldown cleared")
	}
	return ok
}

// ActiveCooldowns lists unexpired cooldowns ordered by expiry
func (m *ThresholdManager) ActiveCooldowns() []Cooldown {
	now := m.now()

	m.mu.Lock()
	out := make([]Cooldown, 0, len(m.cooldowns))
	for key, cd := range m.cooldowns {
		if !now.Before(cd.ExpiresAt) {
			delete(m.cooldowns, key)
			continue
		}
		out = append(out, cd)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

// History returns up to limit recent breaches, oldest first
func (m *ThresholdManager) History(limit int) []Breach {
	return m.history.Recent(limit)
}

// Close stops the private scheduler, if any
func (m *ThresholdManager) Close() {
	if m.ownsSched {
		m.sched.Stop()
	}
}

func cooldownKey(alertType, component string) string {
	return alertType + "|" + component
}

func formatMessage(th Threshold, level Level, component string, value, limit float64) string {
	unit := ""
	if th.Unit != "" {
		unit = " " + th.Unit
	}
	target := ""
	if component != "" {
		target = " on " + component
	}
	return fmt.Sprintf("%s %s%s: %.2f%s %s %.2f%s",
		strings.ToUpper(string(level)), th.AlertType, target, value, unit, th.Comparison, limit, unit)
}

func breachMetadata(th Threshold, extra map[string]any) map[string]any {
	meta := make(map[string]any, len(extra)+4)
	for k, v := range extra {
		meta[k] = v
	}
	meta["section"] = th.Section
	meta["comparison"] = th.Comparison
	meta["evaluation_window_seconds"] = th.EvaluationWindow.Seconds()
	if th.Unit != "" {
		meta["unit"] = th.Unit
	}
	return meta
}
