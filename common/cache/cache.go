package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisWrapper "github.com/theoneeye/oneeye/common/redis"
)

const keyPrefix = "cache:"

// Store is a TTL'd key-value cache. Development-mode single-node execution
// uses it to materialize upstream node outputs.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get returns the raw JSON value. Returns found=false when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// RedisStore implements Store on Redis strings with expiry
type RedisStore struct {
	client     *redisWrapper.Client
	defaultTTL time.Duration
}

// NewRedisStore creates a Redis-backed cache store.
// defaultTTL applies when Set is called with ttl = 0.
func NewRedisStore(client *redisWrapper.Client, defaultTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, defaultTTL: defaultTTL}
}

// Set JSON-serializes value and stores it under cache:<key>
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, keyPrefix+key, string(payload), ttl)
}

// Get retrieves the raw JSON value stored under cache:<key>
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := s.client.Get(ctx, keyPrefix+key)
	if err != nil || !found {
		return nil, found, err
	}
	return []byte(val), true, nil
}

// Delete removes cache:<key>
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Delete(ctx, keyPrefix+key)
}

// Exists reports whether cache:<key> is present
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.client.Exists(ctx, keyPrefix+key)
}
