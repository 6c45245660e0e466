package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/ictengine/ictalert/internal/config"
	"github.com/ictengine/ictalert/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/ictalert.yaml"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "ictalert",
	Short: "Alerting core for the ICT trading engine",
	Long: `ictalert deduplicates, rate-limits and fans out trading alerts, and
evaluates engine metrics against warning, critical and emergency thresholds.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to ictalert configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ictalert", version.Get())
		},
	})
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config. The stock configuration is used when the
// default path does not exist; an explicit path must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err == nil {
		return cfg, nil
	}
	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// newLogger builds the root logger. The --log-level flag wins over the
// configured level; an unknown level falls back to info.
func newLogger(configured string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	name := configured
	if logLevel != "" {
		name = logLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	info := version.Get()
	return zerolog.New(w).With().
		Timestamp().
		Str("version", info.Version).
		Str("commit", info.Commit).
		Logger()
}
