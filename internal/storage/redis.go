package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDedup keeps the dedup index in Redis, for sessions too large or too
// long-lived for a process-local index, or shared across restarts without a
// database file. Keys live under prefix and never expire; a crawl session is
// cleared by deleting the prefix.
type RedisDedup struct {
	client *redis.Client
	prefix string
}

// NewRedisDedup connects to the Redis instance at addr. The prefix namespaces
// this crawl's keys.
func NewRedisDedup(addr, prefix string) *RedisDedup {
	return &RedisDedup{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

// TryClaim atomically marks key as seen via SETNX, returning true only for
// the first caller.
func (d *RedisDedup) TryClaim(ctx context.Context, key string, _ int) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, "seen", 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim key: %w", err)
	}
	return ok, nil
}

// MarkFetched transitions key to its terminal fetched state. Idempotent.
func (d *RedisDedup) MarkFetched(ctx context.Context, key string) error {
	if err := d.client.Set(ctx, d.prefix+key, "fetched", 0).Err(); err != nil {
		return fmt.Errorf("failed to mark fetched: %w", err)
	}
	return nil
}

// IsFetched reports whether key reached the fetched state.
func (d *RedisDedup) IsFetched(ctx context.Context, key string) (bool, error) {
	val, err := d.client.Get(ctx, d.prefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query key state: %w", err)
	}
	return val == "fetched", nil
}

// Close closes the Redis client.
func (d *RedisDedup) Close() error {
	return d.client.Close()
}
