package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// GameChannel is the pub/sub channel carrying row changes for one game.
func GameChannel(gameID string) string {
	return fmt.Sprintf("game:%s", gameID)
}

// JoinRateKey is the counter key for join attempts from one client address.
func JoinRateKey(ip string) string {
	return fmt.Sprintf("ratelimit:join:%s", ip)
}
