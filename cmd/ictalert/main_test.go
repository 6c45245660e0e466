package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ictengine/ictalert/internal/alerter"
	"github.com/ictengine/ictalert/internal/config"
	"github.com/ictengine/ictalert/internal/metrics"
	"github.com/ictengine/ictalert/internal/notifier"
	"github.com/ictengine/ictalert/internal/types"
	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestBuildChannels_Default(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.File.Path = filepath.Join(t.TempDir(), "alerts.jsonl")

	channels, closeFn, err := buildChannels(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	var roles []types.Role
	for _, ch := range channels {
		roles = append(roles, ch.Role())
	}
	assert.Equal(t, []types.Role{types.RoleConsole, types.RoleFile, types.RoleMemory, types.RoleCallback}, roles)
}

func TestBuildChannels_WebhookAndRedis(t *testing.T) {
	t.Setenv("ICT_TEST_WEBHOOK", "http://127.0.0.1:1/notify")

	cfg := config.Default()
	cfg.Channels = config.ChannelsConfig{
		Webhooks: []config.WebhookChannelConfig{{Name: "ops", URLEnv: "ICT_TEST_WEBHOOK"}},
		Redis:    &config.RedisChannelConfig{Addr: "127.0.0.1:6379"},
	}

	channels, closeFn, err := buildChannels(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	require.Len(t, channels, 2)
	assert.Equal(t, "ops", channels[0].Name())
	assert.Equal(t, types.RoleRedis, channels[1].Role())
}

func TestBuildChannels_MissingSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Channels = config.ChannelsConfig{
		Webhooks: []config.WebhookChannelConfig{{Name: "ops", URLEnv: "ICT_TEST_WEBHOOK_UNSET"}},
	}

	_, _, err := buildChannels(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ICT_TEST_WEBHOOK_UNSET")
}

func TestPrintRecord(t *testing.T) {
	var buf bytes.Buffer
	printRecord(&buf, `{"timestamp":1772443800.5,"category":"fvg","severity":"high","message":"gap","symbol":"EURUSD","meta":{},"count":3}`)
	assert.Contains(t, buf.String(), "high     fvg EURUSD: gap (x3)")

	buf.Reset()
	printRecord(&buf, "not json")
	assert.Equal(t, "not json\n", buf.String())
}

func TestEval_ThresholdsFromStdin(t *testing.T) {
	evalThresholds, evalComponent = "-", "account"
	t.Cleanup(func() { evalThresholds, evalComponent = "", "engine" })

	var out bytes.Buffer
	evalCmd.SetIn(strings.NewReader(`
risk_alerts:
  drawdown:
    warning_percent: 3
    critical_percent: 5
    emergency_percent: 8
`))
	evalCmd.SetOut(&out)
	t.Cleanup(func() {
		evalCmd.SetIn(nil)
		evalCmd.SetOut(nil)
	})

	require.NoError(t, runEval(evalCmd, []string{"drawdown", "6"}))
	assert.Contains(t, out.String(), `"level": "critical"`)
	assert.Contains(t, out.String(), `"component": "account"`)

	out.Reset()
	evalCmd.SetIn(strings.NewReader("risk_alerts: {}\n"))
	require.NoError(t, runEval(evalCmd, []string{"drawdown", "6"}))
	assert.Equal(t, "no breach\n", out.String())
}

type engineTarget struct {
	gnmi.UnimplementedGNMIServer
}

func (engineTarget) Capabilities(context.Context, *gnmi.CapabilityRequest) (*gnmi.CapabilityResponse, error) {
	return &gnmi.CapabilityResponse{
		SupportedModels: []*gnmi.ModelData{{Name: "ict-engine"}},
		GNMIVersion:     "0.10.0",
	}, nil
}

func TestCheckTelemetryTarget(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	gnmi.RegisterGNMIServer(srv, engineTarget{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	var out bytes.Buffer
	checkCmd.SetOut(&out)
	checkCmd.SetContext(context.Background())
	t.Cleanup(func() { checkCmd.SetOut(nil) })

	err = checkTelemetryTarget(checkCmd, config.TelemetryConfig{
		Address: "127.0.0.1",
		Port:    lis.Addr().(*net.TCPAddr).Port,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "gNMI 0.10.0, 1 models")

	err = checkTelemetryTarget(checkCmd, config.TelemetryConfig{})
	assert.EqualError(t, err, "telemetry: no address configured")
}

func TestRegisterCallbacks(t *testing.T) {
	reg := metrics.NewRegistry()
	var logs bytes.Buffer
	logger := zerolog.New(&logs)

	assert.NotPanics(t, func() {
		registerCallbacks(alerter.NewManager(alerter.Settings{}, zerolog.Nop()), reg, logger)
	}, "callback channel disabled")

	manager := alerter.NewManager(alerter.Settings{}, zerolog.Nop())
	callbacks := notifier.NewCallbackChannel(zerolog.Nop())
	manager.AddChannel(callbacks)
	registerCallbacks(manager, reg, logger)
	assert.Equal(t, []string{"metrics", "critical-log"}, callbacks.Names())

	require.True(t, manager.RecordAlert("fvg", types.SeverityLow, "gap", "EURUSD", nil))
	require.True(t, manager.RecordAlert("risk", types.SeverityCritical, "margin call", "EURUSD", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.AlertsNotified.WithLabelValues("fvg", "low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.AlertsNotified.WithLabelValues("risk", "critical")))
	assert.Contains(t, logs.String(), "margin call")
	assert.NotContains(t, logs.String(), "gap")
}
