package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ictengine/ictalert/internal/alerter"
	"github.com/ictengine/ictalert/internal/collector"
	"github.com/ictengine/ictalert/internal/evaluator"
	"github.com/ictengine/ictalert/internal/metrics"
	"github.com/ictengine/ictalert/internal/notifier"
	"github.com/ictengine/ictalert/internal/version"
	"github.com/ictengine/ictalert/internal/webui"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server     *Server
	http       *httptest.Server
	manager    *alerter.Manager
	thresholds *evaluator.ThresholdManager
	logs       *webui.LogBuffer
}

func newFixture(t *testing.T, settings alerter.Settings) *fixture {
	t.Helper()

	logs := webui.NewLogBuffer(50)
	logger := zerolog.New(logs)
	reg := metrics.NewRegistry()

	manager := alerter.NewManager(settings, logger, alerter.WithMetrics(reg))
	manager.AddChannel(notifier.NewMemoryChannel(10))

	thresholds := evaluator.NewThresholdManager(logger, evaluator.WithMetrics(reg))
	t.Cleanup(thresholds.Close)
	thresholds.SetThreshold(evaluator.Threshold{
		AlertType: "cpu_usage",
		Section:   "performance_alerts",
		Unit:      "percent",
		Warning:   evaluator.Float(70),
		Critical:  evaluator.Float(85),
		Emergency: evaluator.Float(95),
		Cooldown:  5 * time.Minute,
		Enabled:   true,
	})
	thresholds.OnBreach(func(b evaluator.Breach) { manager.RecordBreach(b) })

	srv := NewServer(manager, thresholds, logger, ":0")
	srv.SetLogBuffer(logs)
	srv.SetMetrics(reg)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: srv, http: ts, manager: manager, thresholds: thresholds, logs: logs}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(bytes.TrimSpace(raw)) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, alerter.Settings{})
	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestPostAlert(t *testing.T) {
	f := newFixture(t, alerter.Settings{RateLimitPer60s: 2})

	payload := `{"category":"fvg","severity":"HIGH","message":"Bullish FVG","symbol":"EURUSD","metadata":{"timeframe":"M15"}}`
	resp, body := f.do(t, http.MethodPost, "/alerts", payload)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, false, body["duplicate"])

	alert := body["alert"].(map[string]any)
	assert.Equal(t, "high", alert["severity"])
	assert.Equal(t, "EURUSD", alert["symbol"])

	deliveries := body["deliveries"].([]any)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "memory", deliveries[0].(map[string]any)["channel"])

	resp, body = f.do(t, http.MethodPost, "/alerts", payload)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, true, body["notified"])

	resp, body = f.do(t, http.MethodPost, "/alerts", payload)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, false, body["accepted"])
}

func TestPostAlert_Validation(t *testing.T) {
	f := newFixture(t, alerter.Settings{})

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"category":`},
		{"missing message", `{"category":"fvg","severity":"low"}`},
		{"bad severity", `{"category":"fvg","severity":"urgent","message":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/alerts", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, false, body["success"])
		})
	}

	resp, _ := f.do(t, http.MethodGet, "/alerts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRecentAlerts(t *testing.T) {
	f := newFixture(t, alerter.Settings{})
	for _, msg := range []string{"one", "two", "three"} {
		require.True(t, f.manager.RecordAlert("ob", "medium", msg, "", nil))
	}

	resp, body := f.do(t, http.MethodGet, "/alerts/recent?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])
	alerts := body["alerts"].([]any)
	assert.Equal(t, "three", alerts[1].(map[string]any)["message"])
	assert.Nil(t, alerts[1].(map[string]any)["symbol"])

	resp, _ = f.do(t, http.MethodGet, "/alerts/recent?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvaluateFlowsIntoAlerts(t *testing.T) {
	f := newFixture(t, alerter.Settings{})

	resp, body := f.do(t, http.MethodPost, "/metrics/evaluate", `{"alert_type":"cpu_usage","value":88,"component":"engine"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["breached"])
	breach := body["breach"].(map[string]any)
	assert.Equal(t, "critical", breach["level"])
	assert.Equal(t, float64(85), breach["threshold_value"])

	resp, body = f.do(t, http.MethodPost, "/metrics/evaluate", `{"alert_type":"cpu_usage","value":99,"component":"engine"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["breached"], "cooldown suppresses the second breach")

	recent := f.manager.GetRecent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "cpu_usage", recent[0].Category)
	assert.Equal(t, "high", string(recent[0].Severity))

	_, body = f.do(t, http.MethodGet, "/breaches", "")
	assert.Equal(t, float64(1), body["count"])

	_, body = f.do(t, http.MethodGet, "/status", "")
	cooldowns := body["active_cooldowns"].([]any)
	require.Len(t, cooldowns, 1)
	assert.Equal(t, "engine", cooldowns[0].(map[string]any)["component"])
	assert.Equal(t, float64(1), body["thresholds"])

	resp, _ = f.do(t, http.MethodPost, "/metrics/evaluate", `{"alert_type":"cpu_usage"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestThresholds(t *testing.T) {
	f := newFixture(t, alerter.Settings{})
	_, body := f.do(t, http.MethodGet, "/thresholds", "")
	list := body["thresholds"].([]any)
	require.Len(t, list, 1)
	th := list[0].(map[string]any)
	assert.Equal(t, "cpu_usage", th["alert_type"])
	assert.Equal(t, ">", th["comparison"])
	assert.Equal(t, float64(5), th["cooldown_minutes"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t, alerter.Settings{RateLimitPer60s: 7})
	f.server.SetHealthFunc(func() collector.Health {
		return collector.Health{Connected: true, SampleCount: 12}
	})
	f.server.SetVersion(version.Info{Version: "1.4.2", Commit: "abc1234"})

	resp, body := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := body["alerts"].(map[string]any)
	assert.Equal(t, float64(7), stats["rate_limit_per_60s"])
	assert.Equal(t, "category_symbol_window", stats["dedup_strategy"])

	telemetry := body["telemetry"].(map[string]any)
	assert.Equal(t, true, telemetry["connected"])
	info := body["version"].(map[string]any)
	assert.Equal(t, "1.4.2", info["version"])
	assert.Equal(t, "abc1234", info["commit"])
}

func TestLogsAPI(t *testing.T) {
	f := newFixture(t, alerter.Settings{})
	f.manager.RecordAlert("fvg", "low", "x", "", nil)

	_, body := f.do(t, http.MethodGet, "/api/logs?component=alert-manager", "")
	entries := body["entries"].([]any)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, "alert-manager", e.(map[string]any)["component"])
	}

	resp, _ := f.do(t, http.MethodGet, "/api/logs?level=loud", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReload(t *testing.T) {
	f := newFixture(t, alerter.Settings{})

	resp, body := f.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["error"], "no threshold file")

	called := false
	f.server.SetReloadFunc(func() error {
		called = true
		return nil
	})
	resp, body = f.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, called)
	assert.Equal(t, true, body["success"])

	f.server.SetReloadFunc(func() error { return errors.New("bad yaml") })
	resp, _ = f.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/reload", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, alerter.Settings{})
	f.manager.RecordAlert("fvg", "low", "x", "", nil)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `ictalert_alerts_recorded_total{category="fvg",severity="low"} 1`)
}
