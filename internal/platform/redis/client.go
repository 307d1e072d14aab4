package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"complyhub/internal/platform/config"
)

// Client is the go-redis client used for module invalidation.
type Client struct {
	*redis.Client
	channel string
}

// Options turns the configured URL and pool settings into go-redis options.
// Zero-valued settings keep the go-redis defaults.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// New connects and pings. It returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Client{Client: client, channel: cfg.Channel}, nil
}

// Channel is the pub/sub channel module changes are announced on.
func (c *Client) Channel() string {
	return c.channel
}

// Health pings the server; /healthz reports it.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
