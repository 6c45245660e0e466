package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ictengine/ictalert/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisChannel = "ict:alerts"
	redisPublishTimeout = 2 * time.Second
)

// Publisher is the part of a Redis client the channel needs
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisChannel publishes alert records on a pub/sub channel for the
// terminal dashboard
type RedisChannel struct {
	client  Publisher
	channel string
	timeout time.Duration
}

func NewRedisChannel(client Publisher, channel string) *RedisChannel {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisChannel{
		client:  client,
		channel: channel,
		timeout: redisPublishTimeout,
	}
}

func (c *RedisChannel) Name() string { return "redis" }

func (c *RedisChannel) Role() types.Role { return types.RoleRedis }

func (c *RedisChannel) Send(alert types.Alert) error {
	payload, err := json.Marshal(alert.ToRecord())
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.client.Publish(ctx, c.channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", c.channel, err)
	}
	return nil
}
