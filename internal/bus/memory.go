package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus used by tests and by single-process
// deployments that do not need fan-out across multiple server instances.
// It keeps the same semantics as RedisBus (independent Subscriptions,
// best-effort delivery) without a network dependency.
type MemoryBus struct {
	mu    sync.Mutex
	subs  map[string]map[*memorySubscription]struct{}
	hash  map[string]map[string]string
	hmu   sync.Mutex
	closed bool
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[*memorySubscription]struct{}),
		hash: make(map[string]map[string]string),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	subs := make([]*memorySubscription, 0, len(b.subs[channel]))
	for s := range b.subs[channel] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(Message{Channel: channel, Payload: payload})
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	s := &memorySubscription{
		bus: b,
		ch:  make(chan Message, 256),
	}
	if err := s.Subscribe(ctx, channels...); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *MemoryBus) HSet(ctx context.Context, key, field, value string) error {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	if b.hash[key] == nil {
		b.hash[key] = make(map[string]string)
	}
	b.hash[key][field] = value
	return nil
}

func (b *MemoryBus) HDel(ctx context.Context, key, field string) error {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	delete(b.hash[key], field)
	return nil
}

func (b *MemoryBus) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	out := make(map[string]string, len(b.hash[key]))
	for k, v := range b.hash[key] {
		out[k] = v
	}
	return out, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *MemoryBus) addSub(channel string, s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][s] = struct{}{}
}

func (b *MemoryBus) removeSub(channel string, s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[channel], s)
}

type memorySubscription struct {
	bus      *MemoryBus
	ch       chan Message
	mu       sync.Mutex
	channels []string
	closed   bool
}

func (s *memorySubscription) deliver(m Message) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.ch <- m:
	default:
	}
}

func (s *memorySubscription) Listen(ctx context.Context) <-chan Message {
	out := make(chan Message, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-s.ch:
				if !ok {
					return
				}
				out <- m
			}
		}
	}()
	return out
}

func (s *memorySubscription) Subscribe(ctx context.Context, channels ...string) error {
	s.mu.Lock()
	s.channels = append(s.channels, channels...)
	s.mu.Unlock()
	for _, c := range channels {
		s.bus.addSub(c, s)
	}
	return nil
}

func (s *memorySubscription) Unsubscribe(ctx context.Context, channels ...string) error {
	for _, c := range channels {
		s.bus.removeSub(c, s)
	}
	s.mu.Lock()
	kept := s.channels[:0]
	for _, c := range s.channels {
		drop := false
		for _, u := range channels {
			if c == u {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, c)
		}
	}
	s.channels = kept
	s.mu.Unlock()
	return nil
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	channels := s.channels
	s.mu.Unlock()

	for _, c := range channels {
		s.bus.removeSub(c, s)
	}
	close(s.ch)
	return nil
}
