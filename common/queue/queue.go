package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisWrapper "github.com/theoneeye/oneeye/common/redis"
)

const keyPrefix = "queue:"

// Store is a durable FIFO queue shared across workflow loops.
// Each element is delivered to at most one consumer.
type Store interface {
	// Push JSON-serializes value and appends it to the queue.
	Push(ctx context.Context, name string, value any) error
	// Pop blocks until a message arrives or the timeout elapses.
	// Returns nil on timeout.
	Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error)
	// Length returns the number of pending messages.
	Length(ctx context.Context, name string) (int64, error)
}

// RedisStore implements Store on Redis lists (LPUSH/BRPOP)
type RedisStore struct {
	client *redisWrapper.Client
}

// NewRedisStore creates a Redis-backed queue store
func NewRedisStore(client *redisWrapper.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Push JSON-serializes value and left-pushes it onto queue:<name>
func (s *RedisStore) Push(ctx context.Context, name string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message for %s: %w", name, err)
	}
	if err := s.client.PushToList(ctx, keyPrefix+name, payload); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", name, err)
	}
	return nil
}

// Pop blocking-pops the oldest message from queue:<name>
func (s *RedisStore) Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	result, err := s.client.BlockingPopList(ctx, timeout, keyPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("failed to pop from queue %s: %w", name, err)
	}
	if result == nil {
		return nil, nil
	}
	// BRPOP returns [key, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected brpop reply from queue %s", name)
	}
	return []byte(result[1]), nil
}

// Length returns the number of pending messages on queue:<name>
func (s *RedisStore) Length(ctx context.Context, name string) (int64, error) {
	return s.client.ListLength(ctx, keyPrefix+name)
}
