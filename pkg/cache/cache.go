// Package cache wraps Redis for the three ambient concerns §6/§9 push onto
// an external store rather than Postgres: revoked-token lookups, the rate
// limiter's request counters, and the externalized PII pseudonym mapping
// (Design Note §9's resolution — pseudonyms must survive process restarts
// and be shared across replicas, which an in-memory map can't do). Client
// construction follows the redis.NewClient(&redis.Options{Addr: ...})
// pattern used throughout jordigilh-kubernaut's Redis-backed tests.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps a redis.Client with the key-namespacing helpers this
// service's three cache consumers share.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis.
func New(cfg Config) *Client {
	return &Client{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// NewFromClient wraps an already-constructed redis.Client, letting tests
// point this package at a miniredis instance.
func NewFromClient(rdb *redis.Client) *Client { return &Client{rdb: rdb} }

// Ping checks connectivity for health endpoints.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection.
func (c *Client) Close() error { return c.rdb.Close() }

// RevokeToken marks a token's JTI revoked until its natural expiry, after
// which Redis's own TTL eviction cleans it up.
func (c *Client) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	return c.rdb.Set(ctx, revokedKey(jti), "1", ttl).Err()
}

// IsTokenRevoked checks the revocation set.
func (c *Client) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func revokedKey(jti string) string { return fmt.Sprintf("revoked:%s", jti) }

// AllowRequest implements a fixed-window rate limiter keyed by identity and
// route: INCR the window counter, set its expiry on first increment, and
// compare against limit.
func (c *Client) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rkey := fmt.Sprintf("ratelimit:%s", key)
	count, err := c.rdb.Incr(ctx, rkey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		c.rdb.Expire(ctx, rkey, window)
	}
	return count <= int64(limit), nil
}

// PutPseudonym stores a fingerprint -> pseudonym mapping so the same PII
// value yields the same pseudonym across the pii.Detector instances running
// in different processes/replicas.
func (c *Client) PutPseudonym(ctx context.Context, tenant, fingerprint, pseudonym string) error {
	return c.rdb.Set(ctx, pseudonymKey(tenant, fingerprint), pseudonym, 0).Err()
}

// GetPseudonym looks up a previously stored pseudonym; ok is false on miss.
func (c *Client) GetPseudonym(ctx context.Context, tenant, fingerprint string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, pseudonymKey(tenant, fingerprint)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func pseudonymKey(tenant, fingerprint string) string {
	return fmt.Sprintf("pseudonym:%s:%s", tenant, fingerprint)
}
