package main

import (
	"fmt"
	"os"

	"github.com/ictengine/ictalert/internal/alerter"
	"github.com/ictengine/ictalert/internal/config"
	"github.com/ictengine/ictalert/internal/notifier"
	"github.com/ictengine/ictalert/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildChannels creates the configured channels in fan-out order. The
// returned close function releases any client connections.
func buildChannels(cfg *config.Config, logger zerolog.Logger) ([]alerter.Channel, func(), error) {
	var (
		channels []alerter.Channel
		closers  []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	ch := cfg.Channels
	if ch.Console.Enabled {
		channels = append(channels, notifier.NewConsoleChannel(os.Stdout, types.Severity(ch.Console.MinSeverity)))
	}
	if ch.File.Enabled {
		channels = append(channels, notifier.NewFileChannel(ch.File.Path, ch.File.RotateBytes, logger))
	}
	if ch.Memory.Enabled {
		channels = append(channels, notifier.NewMemoryChannel(ch.Memory.Limit))
	}
	if ch.Callback {
		channels = append(channels, notifier.NewCallbackChannel(logger))
	}

	for _, wh := range ch.Webhooks {
		url, err := config.Secret(wh.URLEnv)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("webhook %s: %w", wh.Name, err)
		}
		channels = append(channels, notifier.NewWebhookChannel(notifier.WebhookConfig{
			Name:        wh.Name,
			URL:         url,
			MinSeverity: types.Severity(wh.MinSeverity),
			Timeout:     wh.Timeout,
			MaxFailures: wh.MaxFailures,
			OpenDelay:   wh.OpenDelay,
		}, logger))
	}

	if ch.Redis != nil {
		client, err := newRedisClient(ch.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Close() })
		channels = append(channels, notifier.NewRedisChannel(client, ch.Redis.Channel))
	}

	return channels, closeAll, nil
}

func newRedisClient(cfg *config.RedisChannelConfig) (*redis.Client, error) {
	password, err := config.Secret(cfg.PasswordEnv)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: password,
		DB:       cfg.DB,
	}), nil
}
