// Package redis holds the shared-state backends: call counters and the
// webhook idempotency ledger, for deployments running more than one gateway
// process.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateKeyPrefix   = "relaygate:rl:"
	ledgerKeyPrefix = "relaygate:idem:"
)

type Client struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &Client{client: client}, nil
}

// Wrap uses an existing go-redis client.
func Wrap(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.Client.Ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("redis.Client.Close: %w", err)
	}
	return nil
}

// Limiter returns a rate limiter counting in fixed windows of window.
func (c *Client) Limiter(window time.Duration) *Limiter {
	return NewLimiter(c.client, window)
}

// Ledger returns the idempotency store.
func (c *Client) Ledger() *LedgerStore {
	return NewLedgerStore(c.client)
}
