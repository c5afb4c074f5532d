// Package redis implements the domain cache, lock, rate-limit and event-bus
// interfaces on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key written by this package.
const DefaultNamespace = "riskbridge"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace isolates deployments sharing one Redis. Empty selects
	// DefaultNamespace.
	Namespace string
}

// Client wraps a go-redis Client with the key namespace.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New connects, pings and returns the wrapper.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return &Client{rdb: rdb, ns: ns}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// key joins parts under the client namespace: "<ns>:<a>:<b>".
func (c *Client) key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}
