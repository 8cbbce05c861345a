package pubsub

import (
	"context"
	"sync"

	"cosmossdk.io/log"
	"github.com/redis/go-redis/v9"
)

// RedisBus fans out messages through Redis pub/sub. Each subscription
// runs its own receive goroutine; handlers must not block for long or
// Redis will drop messages for that consumer.
type RedisBus struct {
	client *redis.Client
	logger log.Logger

	mu   sync.Mutex
	subs map[*redisSub]struct{}
}

// NewRedisBus connects to Redis and verifies the connection
func NewRedisBus(ctx context.Context, addr, password string, db int, logger log.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{
		client: client,
		logger: logger.With("component", "redis_bus"),
		subs:   make(map[*redisSub]struct{}),
	}, nil
}

// Publish sends payload to every subscriber of channel
func (b *RedisBus) Publish(ctx context.Context, channel, payload string) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe starts delivery of channel messages to h
func (b *RedisBus) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	// wait for the subscription to be established
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := &redisSub{bus: b, ps: ps}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			h(Message{Channel: msg.Channel, Payload: msg.Payload})
		}
	}()

	return sub, nil
}

// Close shuts down all subscriptions and the client
func (b *RedisBus) Close() error {
	b.mu.Lock()
	for sub := range b.subs {
		sub.ps.Close()
	}
	b.subs = make(map[*redisSub]struct{})
	b.mu.Unlock()
	return b.client.Close()
}

type redisSub struct {
	bus  *RedisBus
	ps   *redis.PubSub
	once sync.Once
}

func (s *redisSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		err = s.ps.Close()
	})
	return err
}
