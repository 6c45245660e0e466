package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ictengine/ictalert/internal/evaluator"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	evalComponent  string
	evalThresholds string
)

var evalCmd = &cobra.Command{
	Use:   "eval <alert_type> <value>",
	Short: "Evaluate one metric value against the thresholds",
	Long: `Evaluate one metric value against the configured thresholds and
print the resulting breach, if any.

Examples:
  ictalert eval cpu_usage 91.5
  ictalert eval order_latency 420 --component broker
  cat thresholds.yaml | ictalert eval drawdown 6 --thresholds -`,
	Args: cobra.ExactArgs(2),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalComponent, "component", "engine", "Component the metric belongs to")
	evalCmd.Flags().StringVar(&evalThresholds, "thresholds", "", "Threshold file, or - to read it from stdin (default from config)")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}

	thresholds := evaluator.NewThresholdManager(zerolog.Nop())
	defer thresholds.Close()
	if err := loadEvalThresholds(cmd, thresholds); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	breach := thresholds.EvaluateMetric(args[0], value, evalComponent, nil)
	if breach == nil {
		fmt.Fprintln(out, "no breach")
		return nil
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(breach)
}

func loadEvalThresholds(cmd *cobra.Command, thresholds *evaluator.ThresholdManager) error {
	switch evalThresholds {
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read thresholds from stdin: %w", err)
		}
		return thresholds.LoadBytes(data)
	case "":
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return thresholds.LoadFile(cfg.Thresholds.Path)
	default:
		return thresholds.LoadFile(evalThresholds)
	}
}
