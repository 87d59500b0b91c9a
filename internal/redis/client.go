// Package redis holds the connection used by the sliding-window rate
// limiter; nothing else in the server talks to Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/convinceme/convince-server-go/internal/config"
)

type Client struct {
	*redis.Client
}

// NewClient connects from a redis:// URL and verifies the connection with
// a bounded ping.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = config.RedisPoolSize
	opts.MinIdleConns = config.RedisMinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.RedisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}
