package collector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/openconfig/gnmi/proto/gnmi"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultBackoffMin     = 2 * time.Second
	defaultBackoffMax     = 120 * time.Second
	defaultSamplesBuffer  = 256
	defaultSampleInterval = 10 * time.Second
	reconnectCooldown     = 5 * time.Second
)

// Options configures a telemetry collector
type Options struct {
	Address        string
	Port           int
	Username       string
	Password       string
	TLS            *TLSConfig
	SampleInterval time.Duration
	Subscriptions  []Subscription
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
	ServerName         string
	CAFile             string
	CertFile           string
	KeyFile            string
}

// Backoff holds backoff configuration
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Health tracks the connection state of the telemetry target
type Health struct {
	Connected      bool      `json:"connected"`
	LastUpdate     time.Time `json:"last_update"`
	LastError      string    `json:"last_error,omitempty"`
	ReconnectCount int       `json:"reconnect_count"`
	SampleCount    int64     `json:"sample_count"`
	DroppedCount   int64     `json:"dropped_count"`
	SyncReceived   bool      `json:"sync_received"`
	ConnectedSince time.Time `json:"connected_since"`
}

// Collector streams engine telemetry over gNMI and turns numeric leaves
// into samples for threshold evaluation
type Collector struct {
	opts        Options
	matcher     *matcher
	client      gnmi.GNMI_SubscribeClient
	conn        *grpc.ClientConn
	logger      zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	samples     chan Sample
	errors      chan error
	backoff     Backoff
	dialTimeout time.Duration
	mu          sync.RWMutex
	health      Health
}

// NewCollector creates a collector. Subscription paths are validated here
// so a bad config fails before any connection attempt.
func NewCollector(opts Options, logger zerolog.Logger) (*Collector, error) {
	m, err := newMatcher(opts.Subscriptions)
	if err != nil {
		return nil, err
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = defaultSampleInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		opts:        opts,
		matcher:     m,
		logger:      logger.With().Str("component", "collector").Str("target", opts.Address).Logger(),
		ctx:         ctx,
		cancel:      cancel,
		samples:     make(chan Sample, defaultSamplesBuffer),
		errors:      make(chan error, 1),
		backoff:     Backoff{Min: defaultBackoffMin, Max: defaultBackoffMax},
		dialTimeout: defaultDialTimeout,
	}, nil
}

// Samples returns the channel of matched numeric samples
func (c *Collector) Samples() <-chan Sample {
	return c.samples
}

// Errors returns the error channel
func (c *Collector) Errors() <-chan error {
	return c.errors
}

// Done is closed when the collector is shut down
func (c *Collector) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Health returns the current health status
func (c *Collector) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// Run keeps the subscription alive until ctx is cancelled or the
// collector is closed, reconnecting after stream errors
func (c *Collector) Run(ctx context.Context) {
	for {
		if err := c.Connect(); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case err := <-c.Errors():
			select {
			case <-c.Done():
				return
			default:
			}
			c.logger.Warn().
				Err(err).
				Dur("retry_in", reconnectCooldown).
				Msg("Telemetry stream lost, will reconnect")

			select {
			case <-ctx.Done():
				return
			case <-c.Done():
				return
			case <-time.After(reconnectCooldown):
			}
		}
	}
}

// Connect establishes the subscription, retrying with backoff until it
// succeeds or the collector is closed
func (c *Collector) Connect() error {
	// Tear down the previous session so the target does not accumulate
	// stale subscriptions
	c.closeExisting()

	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}

		err := c.connectOnce()
		if err == nil {
			c.mu.Lock()
			c.health.Connected = true
			c.health.LastError = ""
			c.health.SyncReceived = false
			c.health.ConnectedSince = time.Now()
			c.mu.Unlock()
			return nil
		}

		attempt++
		backoff := c.backoffDuration(attempt)
		c.mu.Lock()
		c.health.Connected = false
		c.health.LastError = err.Error()
		c.health.ReconnectCount++
		c.mu.Unlock()

		c.logger.Warn().
			Err(err).
			Dur("backoff", backoff).
			Int("attempt", attempt).
			Msg("gNMI connection failed, retrying")

		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

func (c *Collector) closeExisting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.CloseSend()
		c.client = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Collector) connectOnce() error {
	addr := fmt.Sprintf("%s:%d", c.opts.Address, c.opts.Port)

	c.logger.Info().
		Str("address", addr).
		Int("subscriptions", len(c.opts.Subscriptions)).
		Msg("Connecting to telemetry target")

	dialCtx, dialCancel := context.WithTimeout(c.ctx, c.dialTimeout)
	defer dialCancel()

	opts, err := c.dialOptions()
	if err != nil {
		return fmt.Errorf("dial options: %w", err)
	}

	// WithBlock keeps the dial from returning before the connection is up;
	// otherwise dialCancel would tear it down
	conn, err := grpc.DialContext(dialCtx, addr, append(opts, grpc.WithBlock())...)
	if err != nil {
		return fmt.Errorf("failed to dial gNMI server: %w", err)
	}

	subClient, err := gnmi.NewGNMIClient(conn).Subscribe(c.ctx)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create subscribe client: %w", err)
	}

	if err := subClient.Send(c.subscribeRequest()); err != nil {
		subClient.CloseSend()
		conn.Close()
		return fmt.Errorf("failed to start subscription: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.client = subClient
	c.mu.Unlock()

	go c.receive(subClient)

	c.logger.Info().Msg("gNMI subscription established")
	return nil
}

func (c *Collector) dialOptions() ([]grpc.DialOption, error) {
	creds, err := c.transportCredentials()
	if err != nil {
		return nil, err
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
	}
	if c.opts.Username != "" || c.opts.Password != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&basicAuth{username: c.opts.Username, password: c.opts.Password}))
	}
	return opts, nil
}

func (c *Collector) transportCredentials() (credentials.TransportCredentials, error) {
	cfg := c.opts.TLS
	if cfg == nil || !cfg.Enabled {
		return insecure.NewCredentials(), nil
	}

	certPool, err := loadCertPool(cfg.CAFile)
	if err != nil {
		return nil, err
	}
	certs, err := loadClientCert(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		RootCAs:            certPool,
		Certificates:       certs,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}), nil
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return x509.SystemCertPool()
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("invalid ca certs")
	}
	return pool, nil
}

func loadClientCert(certFile, keyFile string) ([]tls.Certificate, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	return []tls.Certificate{cert}, nil
}

// basicAuth sends HTTP basic credentials as gRPC metadata
type basicAuth struct {
	username string
	password string
}

func (b *basicAuth) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	if b.username == "" && b.password == "" {
		return nil, nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(b.username + ":" + b.password))
	return map[string]string{
		"authorization": "Basic " + encoded,
	}, nil
}

func (b *basicAuth) RequireTransportSecurity() bool {
	return false
}

// backoffDuration calculates exponential backoff with jitter
func (c *Collector) backoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return c.backoff.Min
	}
	backoff := c.backoff.Min << attempt
	if backoff <= 0 || backoff > c.backoff.Max {
		backoff = c.backoff.Max
	}
	jitter := time.Duration(rand.Int63n(int64(c.backoff.Min)))
	return backoff + jitter
}

// subscribeRequest builds one SAMPLE subscription per configured path
func (c *Collector) subscribeRequest() *gnmi.SubscribeRequest {
	subs := make([]*gnmi.Subscription, 0, len(c.matcher.entries))
	for _, e := range c.matcher.entries {
		subs = append(subs, &gnmi.Subscription{
			Path:           e.path,
			Mode:           gnmi.SubscriptionMode_SAMPLE,
			SampleInterval: uint64(c.opts.SampleInterval.Nanoseconds()),
		})
	}
	return &gnmi.SubscribeRequest{
		Request: &gnmi.SubscribeRequest_Subscribe{
			Subscribe: &gnmi.SubscriptionList{
				Subscription: subs,
				Mode:         gnmi.SubscriptionList_STREAM,
				Encoding:     gnmi.Encoding_JSON_IETF,
			},
		},
	}
}

func (c *Collector) receive(client gnmi.GNMI_SubscribeClient) {
	for {
		resp, err := client.Recv()
		if err != nil {
			if c.ctx.Err() == nil {
				c.emitError(fmt.Errorf("receive update: %w", err))
			}
			return
		}

		switch v := resp.Response.(type) {
		case *gnmi.SubscribeResponse_Update:
			c.handleNotification(v.Update)
		case *gnmi.SubscribeResponse_Error:
			c.emitError(fmt.Errorf("subscribe error: %s", v.Error.GetMessage()))
			return
		case *gnmi.SubscribeResponse_SyncResponse:
			c.logger.Info().Msg("gNMI subscription sync complete")
			c.mu.Lock()
			c.health.LastUpdate = time.Now()
			c.health.SyncReceived = true
			c.mu.Unlock()
		}
	}
}

// handleNotification extracts matched numeric samples and queues them.
// A full queue drops samples rather than stalling the stream.
func (c *Collector) handleNotification(notif *gnmi.Notification) {
	samples := c.extract(notif)

	var dropped int64
	for _, s := range samples {
		select {
		case c.samples <- s:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		c.logger.Warn().Int64("dropped", dropped).Msg("Sample channel full, dropping samples")
	}

	c.mu.Lock()
	c.health.LastUpdate = time.Now()
	c.health.SampleCount += int64(len(samples)) - dropped
	c.health.DroppedCount += dropped
	c.mu.Unlock()
}

func (c *Collector) emitError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// TestConnection performs a one-shot Capabilities request and returns the
// supported model count and gNMI version
func (c *Collector) TestConnection(ctx context.Context) (int, string, error) {
	addr := fmt.Sprintf("%s:%d", c.opts.Address, c.opts.Port)

	dialCtx, dialCancel := context.WithTimeout(ctx, c.dialTimeout)
	defer dialCancel()

	opts, err := c.dialOptions()
	if err != nil {
		return 0, "", fmt.Errorf("dial options: %w", err)
	}

	conn, err := grpc.DialContext(dialCtx, addr, append(opts, grpc.WithBlock())...)
	if err != nil {
		return 0, "", fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	capCtx, capCancel := context.WithTimeout(ctx, c.dialTimeout)
	defer capCancel()

	resp, err := gnmi.NewGNMIClient(conn).Capabilities(capCtx, &gnmi.CapabilityRequest{})
	if err != nil {
		return 0, "", fmt.Errorf("capabilities request failed: %w", err)
	}

	c.logger.Info().
		Int("models", len(resp.GetSupportedModels())).
		Str("gnmi_version", resp.GetGNMIVersion()).
		Msg("Connection test successful")

	return len(resp.GetSupportedModels()), resp.GetGNMIVersion(), nil
}

// Close stops the collector and its connection
func (c *Collector) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.CloseSend()
		c.client = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
