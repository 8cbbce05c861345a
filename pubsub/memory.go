package pubsub

import (
	"context"
	"sync"
)

// memorySubBuffer bounds per-subscriber queues; messages beyond it are
// dropped rather than blocking the publisher.
const memorySubBuffer = 256

// MemoryBus is an in-process Bus for tests and single-node deployments
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[*memorySub]struct{}),
	}
}

// Publish delivers payload to current subscribers of channel. Slow
// subscribers with full buffers are skipped.
func (b *MemoryBus) Publish(_ context.Context, channel, payload string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for sub := range b.subs[channel] {
		select {
		case sub.ch <- Message{Channel: channel, Payload: payload}:
		default:
			// drop for slow consumer
		}
	}
	return nil
}

// Subscribe starts delivery of channel messages to h
func (b *MemoryBus) Subscribe(_ context.Context, channel string, h Handler) (Subscription, error) {
	sub := &memorySub{
		bus:     b,
		channel: channel,
		ch:      make(chan Message, memorySubBuffer),
	}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySub]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for msg := range sub.ch {
			h(msg)
		}
	}()

	return sub, nil
}

// Close drops all subscriptions
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[string]map[*memorySub]struct{})
	return nil
}

type memorySub struct {
	bus     *MemoryBus
	channel string
	ch      chan Message
	once    sync.Once
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.subs[s.channel]; ok {
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
				if len(subs) == 0 {
					delete(s.bus.subs, s.channel)
				}
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}
