package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ictengine/ictalert/internal/config"
	"github.com/ictengine/ictalert/internal/evaluator"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const telemetryCheckTimeout = 15 * time.Second

var checkTelemetry bool

var checkCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and threshold files",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkTelemetry, "check-telemetry", false, "Also query the gNMI target for its capabilities")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "config: ok (rate limit %d/60s, dedup %s, strategy %s)\n",
		cfg.Alerting.RateLimitPer60s, cfg.Alerting.DedupWindow, cfg.Alerting.DedupStrategy)

	data, err := os.ReadFile(cfg.Thresholds.Path)
	if err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	parsed, err := evaluator.ParseThresholds(data)
	if err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	names := make([]string, 0, len(parsed))
	for name := range parsed {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "thresholds: ok (%d from %s)\n", len(parsed), cfg.Thresholds.Path)
	for _, name := range names {
		th := parsed[name]
		state := "enabled"
		if !th.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "  %-28s %-20s %s %s cooldown=%s\n",
			name, th.Section, th.Comparison, state, th.Cooldown)
	}

	if checkTelemetry {
		return checkTelemetryTarget(cmd, cfg.Telemetry)
	}
	return nil
}

func checkTelemetryTarget(cmd *cobra.Command, cfg config.TelemetryConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("telemetry: no address configured")
	}
	col, err := newCollector(cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer col.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), telemetryCheckTimeout)
	defer cancel()

	models, gnmiVersion, err := col.TestConnection(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "telemetry: ok (%s:%d, gNMI %s, %d models)\n",
		cfg.Address, cfg.Port, gnmiVersion, models)
	return nil
}
