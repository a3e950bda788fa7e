// Package redis opens the shared go-redis client used for cross-instance
// job locking.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"notto/internal/platform/config"
)

// Client wraps *redis.Client so callers get a health check alongside the
// raw commands.
type Client struct {
	*redis.Client
}

// New connects and pings. An empty URL means redis is not configured and
// returns a nil client with no error; callers fall back to in-process
// locking.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether the connection still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
