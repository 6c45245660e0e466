package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ictengine/ictalert/internal/types"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	defaultWebhookTimeout   = 10 * time.Second
	defaultBreakerFailures  = 3
	defaultBreakerOpenDelay = 60 * time.Second
)

// WebhookConfig configures an Apprise-compatible HTTP channel
type WebhookConfig struct {
	Name        string
	URL         string
	MinSeverity types.Severity
	Timeout     time.Duration
	// MaxFailures consecutive failures open the breaker for OpenDelay
	MaxFailures int
	OpenDelay   time.Duration
}

// WebhookChannel posts alerts as JSON. A circuit breaker stops calls to
// an endpoint that keeps failing so producers are not held up by it.
type WebhookChannel struct {
	cfg     WebhookConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewWebhookChannel creates a webhook channel
func NewWebhookChannel(cfg WebhookConfig, logger zerolog.Logger) *WebhookChannel {
	if cfg.Name == "" {
		cfg.Name = "webhook"
	}
	if !cfg.MinSeverity.Valid() {
		cfg.MinSeverity = types.SeverityHigh
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultWebhookTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultBreakerFailures
	}
	if cfg.OpenDelay <= 0 {
		cfg.OpenDelay = defaultBreakerOpenDelay
	}

	log := logger.With().Str("component", "webhook-channel").Str("channel", cfg.Name).Logger()
	maxFailures := uint32(cfg.MaxFailures)

	return &WebhookChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.OpenDelay,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Webhook circuit breaker state changed")
			},
		}),
	}
}

func (c *WebhookChannel) Name() string { return c.cfg.Name }

func (c *WebhookChannel) Role() types.Role { return types.RoleWebhook }

// State reports the circuit breaker state
func (c *WebhookChannel) State() gobreaker.State {
	return c.breaker.State()
}

func (c *WebhookChannel) Send(alert types.Alert) error {
	if !alert.Severity.AtLeast(c.cfg.MinSeverity) {
		return nil
	}

	payload, err := json.Marshal(webhookPayload(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(payload)
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", c.cfg.Name, err)
	}

	c.logger.Debug().Str("category", alert.Category).Msg("Notification sent")
	return nil
}

func (c *WebhookChannel) post(payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// webhookPayload follows the Apprise notify body
func webhookPayload(alert types.Alert) map[string]any {
	title := fmt.Sprintf("ICT Engine %s: %s", severityTag(alert.Severity), alert.Category)
	if alert.Symbol != "" {
		title += " " + alert.Symbol
	}
	return map[string]any{
		"title":  title,
		"body":   formatLine(alert),
		"type":   appriseType(alert.Severity),
		"format": "text",
		"alert":  alert.ToRecord(),
	}
}

func appriseType(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "failure"
	case types.SeverityHigh:
		return "warning"
	default:
		return "info"
	}
}
