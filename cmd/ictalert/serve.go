package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ictengine/ictalert/internal/alerter"
	"github.com/ictengine/ictalert/internal/api"
	"github.com/ictengine/ictalert/internal/collector"
	"github.com/ictengine/ictalert/internal/config"
	"github.com/ictengine/ictalert/internal/evaluator"
	"github.com/ictengine/ictalert/internal/metrics"
	"github.com/ictengine/ictalert/internal/scheduler"
	"github.com/ictengine/ictalert/internal/types"
	"github.com/ictengine/ictalert/internal/webui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const logBufferSize = 1000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alerting service",
	Long: `Run the alert manager, threshold manager, optional gNMI telemetry
collector and the HTTP API until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logBuffer := webui.NewLogBuffer(logBufferSize)
	logger := newLogger(cfg.Global.LogLevel, io.MultiWriter(os.Stdout, logBuffer))
	logger.Info().Msg("Starting ictalert")

	reg := metrics.NewRegistry()

	strategy, err := alerter.ParseDedupStrategy(cfg.Alerting.DedupStrategy)
	if err != nil {
		return err
	}
	manager := alerter.NewManager(alerter.Settings{
		RateLimitPer60s: cfg.Alerting.RateLimitPer60s,
		DedupWindow:     cfg.Alerting.DedupWindow,
		Strategy:        strategy,
	}, logger, alerter.WithMetrics(reg))

	channels, closeChannels, err := buildChannels(cfg, logger)
	if err != nil {
		return err
	}
	defer closeChannels()
	for _, ch := range channels {
		manager.AddChannel(ch)
	}
	registerCallbacks(manager, reg, logger)

	sched := scheduler.New(logger)
	defer sched.Stop()

	thresholds := evaluator.NewThresholdManager(logger,
		evaluator.WithMetrics(reg),
		evaluator.WithScheduler(sched),
		evaluator.WithCheckInterval(cfg.Thresholds.CheckInterval),
		evaluator.WithHistorySize(cfg.Thresholds.HistorySize),
	)
	defer thresholds.Close()

	// A missing threshold file is not fatal; it is picked up on reload
	if err := thresholds.LoadFile(cfg.Thresholds.Path); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Thresholds.Path).Msg("Starting without thresholds")
	}
	thresholds.OnBreach(func(b evaluator.Breach) {
		manager.RecordBreach(b)
	})

	server := api.NewServer(manager, thresholds, logger, fmt.Sprintf(":%d", cfg.Global.APIPort))
	server.SetLogBuffer(logBuffer)
	server.SetMetrics(reg)
	server.SetReloadFunc(func() error {
		if err := thresholds.Reload(); err != nil {
			return err
		}
		manager.Clear()
		return nil
	})

	if cfg.Telemetry.Enabled {
		col, err := newCollector(cfg.Telemetry, logger)
		if err != nil {
			return err
		}
		defer col.Close()

		server.SetHealthFunc(col.Health)
		go col.Run(ctx)
		go consumeSamples(ctx, col, thresholds, reg, logger)
	}

	logger.Info().
		Int("channels", len(channels)).
		Int("thresholds", len(thresholds.Thresholds())).
		Int("api_port", cfg.Global.APIPort).
		Msg("ictalert running, press Ctrl+C to stop")

	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("API server error")
		return err
	}

	logger.Info().Msg("ictalert stopped")
	return nil
}

// registerCallbacks attaches the in-process consumers of the callback
// channel. It is a no-op when the channel is disabled.
func registerCallbacks(manager *alerter.Manager, reg *metrics.Registry, logger zerolog.Logger) {
	if _, ok := manager.ChannelFor(types.RoleCallback); !ok {
		return
	}
	manager.AddCallback("metrics", func(a types.Alert) error {
		reg.Notified(a.Category, string(a.Severity))
		return nil
	})

	escalation := logger.With().Str("component", "escalation").Logger()
	manager.AddCallback("critical-log", func(a types.Alert) error {
		if a.Severity != types.SeverityCritical {
			return nil
		}
		escalation.Error().
			Str("category", a.Category).
			Str("symbol", a.Symbol).
			Int("count", a.Count).
			Msg(a.Message)
		return nil
	})
}

func newCollector(cfg config.TelemetryConfig, logger zerolog.Logger) (*collector.Collector, error) {
	username, err := config.Secret(cfg.UsernameEnv)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	password, err := config.Secret(cfg.PasswordEnv)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	subs := make([]collector.Subscription, 0, len(cfg.Subscriptions))
	for _, s := range cfg.Subscriptions {
		subs = append(subs, collector.Subscription{
			Path:      s.Path,
			AlertType: s.AlertType,
			Component: s.Component,
		})
	}

	return collector.NewCollector(collector.Options{
		Address:        cfg.Address,
		Port:           cfg.Port,
		Username:       username,
		Password:       password,
		TLS:            &collector.TLSConfig{Enabled: cfg.TLS},
		SampleInterval: cfg.SampleInterval,
		Subscriptions:  subs,
	}, logger)
}

// consumeSamples feeds telemetry into the threshold manager. Breaches
// reach the alert manager through the OnBreach hook.
func consumeSamples(ctx context.Context, col *collector.Collector, thresholds *evaluator.ThresholdManager, reg *metrics.Registry, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-col.Done():
			return
		case s := <-col.Samples():
			reg.Sample(s.AlertType)
			thresholds.EvaluateMetric(s.AlertType, s.Value, s.Component, map[string]any{
				"path":       s.Path,
				"sampled_at": s.Timestamp.Unix(),
				"source":     "telemetry",
			})
			logger.Debug().
				Str("alert_type", s.AlertType).
				Str("component", s.Component).
				Float64("value", s.Value).
				Msg("Sample evaluated")
		}
	}
}
