package config

import "time"

// Config represents the complete ictalert configuration
type Config struct {
	Global     GlobalConfig     `yaml:"global"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Telemetry  TelemetryConfig  `yaml:"telemetry,omitempty"`
}

// GlobalConfig contains process-wide settings
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	APIPort  int    `yaml:"api_port"`
}

// AlertingConfig controls admission and deduplication
type AlertingConfig struct {
	RateLimitPer60s int           `yaml:"rate_limit_per_60s"`
	DedupWindow     time.Duration `yaml:"dedup_window"`
	DedupStrategy   string        `yaml:"dedup_strategy"` // "none", "message_window", "category_symbol_window"
}

// ChannelsConfig lists the delivery channels to register, in fan-out order
type ChannelsConfig struct {
	Console  ConsoleChannelConfig   `yaml:"console"`
	File     FileChannelConfig      `yaml:"file"`
	Memory   MemoryChannelConfig    `yaml:"memory"`
	Callback bool                   `yaml:"callback"`
	Webhooks []WebhookChannelConfig `yaml:"webhooks,omitempty"`
	Redis    *RedisChannelConfig    `yaml:"redis,omitempty"`
}

// ConsoleChannelConfig configures stdout output
type ConsoleChannelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinSeverity string `yaml:"min_severity,omitempty"`
}

// FileChannelConfig configures the JSONL alert log
type FileChannelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	RotateBytes int64  `yaml:"rotate_bytes"`
}

// MemoryChannelConfig configures the in-memory recent alerts ring
type MemoryChannelConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// WebhookChannelConfig defines an Apprise-compatible notification target
type WebhookChannelConfig struct {
	Name        string        `yaml:"name"`
	URLEnv      string        `yaml:"url_env"`
	MinSeverity string        `yaml:"min_severity,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxFailures int           `yaml:"max_failures,omitempty"`
	OpenDelay   time.Duration `yaml:"open_delay,omitempty"`
}

// RedisChannelConfig defines the pub/sub target for the dashboard
type RedisChannelConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	DB          int    `yaml:"db"`
	Channel     string `yaml:"channel"`
}

// ThresholdsConfig points at the threshold definitions
type ThresholdsConfig struct {
	Path          string        `yaml:"path"`
	CheckInterval time.Duration `yaml:"check_interval"`
	HistorySize   int           `yaml:"history_size"`
}

// TelemetryConfig defines the gNMI target streaming engine metrics
type TelemetryConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Address        string         `yaml:"address"`
	Port           int            `yaml:"port"`
	UsernameEnv    string         `yaml:"username_env,omitempty"`
	PasswordEnv    string         `yaml:"password_env,omitempty"`
	TLS            bool           `yaml:"tls"`
	SampleInterval time.Duration  `yaml:"sample_interval"`
	Subscriptions  []Subscription `yaml:"subscriptions"`
}

// Subscription maps a telemetry path onto a threshold alert type
type Subscription struct {
	Path      string `yaml:"path"`
	AlertType string `yaml:"alert_type"`
	Component string `yaml:"component,omitempty"`
}
