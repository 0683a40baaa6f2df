package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	redisWrapper "github.com/theoneeye/oneeye/common/redis"
)

// Store is a transient fan-out channel. Messages published with zero
// current subscribers are lost.
type Store interface {
	// Publish sends value to every current subscriber and returns the
	// subscriber count.
	Publish(ctx context.Context, channel string, value any) (int64, error)
	// Subscribe opens a dedicated subscription to a channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a live subscription to a single channel
type Subscription interface {
	// Messages yields raw payloads as they arrive. The channel closes
	// when the subscription is closed.
	Messages() <-chan []byte
	Close() error
}

// RedisStore implements Store on Redis PUBLISH/SUBSCRIBE
type RedisStore struct {
	client *redisWrapper.Client
}

// NewRedisStore creates a Redis-backed pub/sub store
func NewRedisStore(client *redisWrapper.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Publish JSON-serializes value and publishes it to the channel
func (s *RedisStore) Publish(ctx context.Context, channel string, value any) (int64, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message for channel %s: %w", channel, err)
	}
	return s.client.PublishEvent(ctx, channel, string(payload))
}

// Subscribe opens a dedicated connection subscribed to the channel.
// The returned subscription must be closed by the caller.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channel)

	// Wait for confirmation that the subscription is live so publishes
	// racing the subscribe are not silently dropped.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan []byte),
		done:   make(chan struct{}),
	}
	go sub.forward(pubsub.Channel())
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) forward(in <-chan *redis.Message) {
	defer close(s.out)
	for msg := range in {
		if msg == nil {
			continue
		}
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.pubsub.Close()
}
