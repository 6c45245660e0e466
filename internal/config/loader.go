package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ictengine/ictalert/internal/alerter"
	"github.com/ictengine/ictalert/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIPort        = 8080
	DefaultThresholdsPath = "config/alert_thresholds.yaml"
	DefaultCheckInterval  = 30 * time.Second
	DefaultHistorySize    = 1000
	DefaultGNMIPort       = 9339
	DefaultSampleInterval = 10 * time.Second
)

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: console,
// file and memory channels with the stock limits
func Default() *Config {
	cfg := &Config{
		Channels: ChannelsConfig{
			Console:  ConsoleChannelConfig{Enabled: true},
			File:     FileChannelConfig{Enabled: true},
			Memory:   MemoryChannelConfig{Enabled: true},
			Callback: true,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Global.LogLevel == "" {
		cfg.Global.LogLevel = "info"
	}
	if cfg.Global.APIPort == 0 {
		cfg.Global.APIPort = DefaultAPIPort
	}
	if cfg.Alerting.RateLimitPer60s == 0 {
		cfg.Alerting.RateLimitPer60s = alerter.DefaultRateLimitPer60s
	}
	if cfg.Alerting.DedupWindow == 0 {
		cfg.Alerting.DedupWindow = alerter.DefaultDedupWindow
	}
	if cfg.Alerting.DedupStrategy == "" {
		cfg.Alerting.DedupStrategy = string(alerter.DedupCategorySymbolWindow)
	}
	if cfg.Thresholds.Path == "" {
		cfg.Thresholds.Path = DefaultThresholdsPath
	}
	if cfg.Thresholds.CheckInterval == 0 {
		cfg.Thresholds.CheckInterval = DefaultCheckInterval
	}
	if cfg.Thresholds.HistorySize == 0 {
		cfg.Thresholds.HistorySize = DefaultHistorySize
	}
	if cfg.Telemetry.Port == 0 {
		cfg.Telemetry.Port = DefaultGNMIPort
	}
	if cfg.Telemetry.SampleInterval == 0 {
		cfg.Telemetry.SampleInterval = DefaultSampleInterval
	}
	if cfg.Channels.Redis != nil && cfg.Channels.Redis.Addr == "" {
		cfg.Channels.Redis.Addr = "localhost:6379"
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Global.APIPort < 0 || cfg.Global.APIPort > 65535 {
		return fmt.Errorf("global.api_port must be between 0 and 65535")
	}

	if cfg.Alerting.RateLimitPer60s < 0 {
		return fmt.Errorf("alerting.rate_limit_per_60s must be > 0")
	}
	if cfg.Alerting.DedupWindow < 0 {
		return fmt.Errorf("alerting.dedup_window must be positive")
	}
	if _, err := alerter.ParseDedupStrategy(cfg.Alerting.DedupStrategy); err != nil {
		return fmt.Errorf("alerting.dedup_strategy: %w", err)
	}

	if err := validateSeverity("channels.console.min_severity", cfg.Channels.Console.MinSeverity); err != nil {
		return err
	}
	if cfg.Channels.File.RotateBytes < 0 {
		return fmt.Errorf("channels.file.rotate_bytes must be positive")
	}
	if cfg.Channels.Memory.Limit < 0 {
		return fmt.Errorf("channels.memory.limit must be positive")
	}

	seen := make(map[string]bool)
	for i, wh := range cfg.Channels.Webhooks {
		if wh.Name == "" {
			return fmt.Errorf("channels.webhooks[%d]: name is required", i)
		}
		if seen[wh.Name] {
			return fmt.Errorf("channels.webhooks[%d]: duplicate name %s", i, wh.Name)
		}
		seen[wh.Name] = true
		// The variable itself may only be set at runtime
		if wh.URLEnv == "" {
			return fmt.Errorf("webhook %s: url_env is required", wh.Name)
		}
		if err := validateSeverity("webhook "+wh.Name+": min_severity", wh.MinSeverity); err != nil {
			return err
		}
	}

	if cfg.Thresholds.CheckInterval < 0 {
		return fmt.Errorf("thresholds.check_interval must be positive")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Address == "" {
			return fmt.Errorf("telemetry: address is required when enabled")
		}
		if len(cfg.Telemetry.Subscriptions) == 0 {
			return fmt.Errorf("telemetry: at least one subscription is required when enabled")
		}
		for i, sub := range cfg.Telemetry.Subscriptions {
			if !strings.HasPrefix(sub.Path, "/") {
				return fmt.Errorf("telemetry.subscriptions[%d]: path must start with '/'", i)
			}
			if sub.AlertType == "" {
				return fmt.Errorf("telemetry.subscriptions[%d]: alert_type is required", i)
			}
		}
	}

	return nil
}

func validateSeverity(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := types.ParseSeverity(value); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// Secret resolves a credential from the environment variable named by
// envName. An empty name yields an empty secret.
func Secret(envName string) (string, error) {
	if envName == "" {
		return "", nil
	}
	value, ok := os.LookupEnv(envName)
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable %s is not set", envName)
	}
	return value, nil
}
