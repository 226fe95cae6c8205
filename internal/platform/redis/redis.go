package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"raffle-backend/internal/common/config"
	"raffle-backend/internal/common/logger"
)

const pingTimeout = 5 * time.Second

// Client wraps the go-redis client shared by the store, the event publisher and the stream worker.
type Client struct {
	*redis.Client
}

// Open connects to the configured Redis and pings it.
func Open(ctx context.Context, cfg *config.Config) (*Client, error) {
	addr := cfg.RedisAddr()
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	logger.Info().Str("addr", addr).Int("db", cfg.Redis.DB).Msg("Redis client initialized")
	return &Client{Client: c}, nil
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
