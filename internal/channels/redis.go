package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport delivers topics straight off Redis pub/sub. go-redis
// re-establishes the subscription on reconnect by itself, which covers the
// transparent resubscribe requirement; gaps and duplicates around a reconnect
// are left to the reconciler.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(addr string, db int) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("[RedisTransport] - failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisTransport{client: client}, nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := t.client.Subscribe(ctx, topic)
	// Force the subscribe round trip so a broken broker surfaces here and not
	// as a silently dead feed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("[RedisTransport] - failed to subscribe to %s: %w", topic, err)
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan Message),
		done:   make(chan struct{}),
	}
	go sub.pump(topic)
	return sub, nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Message
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump(topic string) {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		select {
		case s.out <- Message{Topic: topic, Payload: []byte(msg.Payload)}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.pubsub.Close()
}
