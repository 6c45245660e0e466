package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus metrics for the alerting core. A nil
// *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	AlertsRecorded    *prometheus.CounterVec
	AlertsRateLimited prometheus.Counter
	AlertsDuplicate   *prometheus.CounterVec
	AlertsRenotified  *prometheus.CounterVec
	AlertsNotified    *prometheus.CounterVec
	DedupEntries      prometheus.Gauge

	ChannelDeliveries *prometheus.CounterVec

	ThresholdBreaches   *prometheus.CounterVec
	ThresholdSuppressed *prometheus.CounterVec
	ActiveCooldowns     prometheus.Gauge
	ConfigReloads       *prometheus.CounterVec

	TelemetrySamples *prometheus.CounterVec
}

// NewRegistry creates all metrics on a private registry
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		AlertsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_alerts_recorded_total",
				Help: "Alerts admitted past the rate limiter, by category and severity",
			},
			[]string{"category", "severity"},
		),
		AlertsRateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ictalert_alerts_rate_limited_total",
				Help: "Alerts rejected by the 60 second admission window",
			},
		),
		AlertsDuplicate: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_alerts_duplicate_total",
				Help: "Alerts folded into an existing dedup entry",
			},
			[]string{"severity"},
		),
		AlertsRenotified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_alerts_renotified_total",
				Help: "Duplicate alerts fanned out again because of their severity",
			},
			[]string{"severity"},
		),
		AlertsNotified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_alerts_notified_total",
				Help: "Alerts observed by the in-process callback, by category and severity",
			},
			[]string{"category", "severity"},
		),
		DedupEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ictalert_dedup_entries",
				Help: "Live entries in the dedup store",
			},
		),
		ChannelDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_channel_deliveries_total",
				Help: "Channel send attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		ThresholdBreaches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_threshold_breaches_total",
				Help: "Threshold breaches emitted by alert type and level",
			},
			[]string{"alert_type", "level"},
		),
		ThresholdSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_threshold_suppressed_total",
				Help: "Evaluations skipped because the alert type and component were cooling down",
			},
			[]string{"alert_type"},
		),
		ActiveCooldowns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ictalert_active_cooldowns",
				Help: "Alert type and component pairs currently cooling down",
			},
		),
		ConfigReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_threshold_config_reloads_total",
				Help: "Threshold config reload attempts by result",
			},
			[]string{"result"},
		),
		TelemetrySamples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictalert_telemetry_samples_total",
				Help: "Numeric telemetry samples received by alert type",
			},
			[]string{"alert_type"},
		),
	}

	r.reg.MustRegister(
		r.AlertsRecorded,
		r.AlertsRateLimited,
		r.AlertsDuplicate,
		r.AlertsRenotified,
		r.AlertsNotified,
		r.DedupEntries,
		r.ChannelDeliveries,
		r.ThresholdBreaches,
		r.ThresholdSuppressed,
		r.ActiveCooldowns,
		r.ConfigReloads,
		r.TelemetrySamples,
	)
	return r
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Recorded(category, severity string) {
	if r == nil {
		return
	}
	r.AlertsRecorded.WithLabelValues(category, severity).Inc()
}

func (r *Registry) RateLimited() {
	if r == nil {
		return
	}
	r.AlertsRateLimited.Inc()
}

func (r *Registry) Duplicate(severity string, renotified bool) {
	if r == nil {
		return
	}
	r.AlertsDuplicate.WithLabelValues(severity).Inc()
	if renotified {
		r.AlertsRenotified.WithLabelValues(severity).Inc()
	}
}

func (r *Registry) Notified(category, severity string) {
	if r == nil {
		return
	}
	r.AlertsNotified.WithLabelValues(category, severity).Inc()
}

func (r *Registry) SetDedupEntries(n int) {
	if r == nil {
		return
	}
	r.DedupEntries.Set(float64(n))
}

func (r *Registry) Delivery(channel string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ChannelDeliveries.WithLabelValues(channel, result).Inc()
}

func (r *Registry) Breach(alertType, level string) {
	if r == nil {
		return
	}
	r.ThresholdBreaches.WithLabelValues(alertType, level).Inc()
}

func (r *Registry) Suppressed(alertType string) {
	if r == nil {
		return
	}
	r.ThresholdSuppressed.WithLabelValues(alertType).Inc()
}

func (r *Registry) SetActiveCooldowns(n int) {
	if r == nil {
		return
	}
	r.ActiveCooldowns.Set(float64(n))
}

func (r *Registry) Reload(err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ConfigReloads.WithLabelValues(result).Inc()
}

func (r *Registry) Sample(alertType string) {
	if r == nil {
		return
	}
	r.TelemetrySamples.WithLabelValues(alertType).Inc()
}
