package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisBus is the production Bus Adapter, backed by Redis pub/sub for
// channels and Redis hashes for the presence hash. Adapted from
// RoseWrightdev-Video-Conferencing's bus.Service: a circuit breaker wraps
// every publish and hash call so a degraded Redis degrades message delivery
// (§7, "Bus error: best-effort") instead of blocking every connection
// goroutine. Subscribe and Close call the Redis client directly, outside
// the breaker.
// Unlike that service, which only exposes Redis Sets, this adapter uses
// native Redis hash commands because the presence hash (§4.2, §4.4) needs
// hset/hdel/hgetall, not set membership.
type RedisBus struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus connects to addr and verifies connectivity immediately.
func NewRedisBus(addr, password string, db int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: connect to redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "bus-redis",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("bus: circuit breaker state change", "from", from.String(), "to", to.String())
		},
	}

	return &RedisBus{client: client, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

func NewRedisBusFromClient(client *redis.Client) *RedisBus {
	st := gobreaker.Settings{Name: "bus-redis"}
	return &RedisBus{client: client, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			slog.Warn("bus: circuit open, dropping publish", "channel", channel)
			return nil
		}
		slog.Error("bus: publish failed", "channel", channel, "error", err)
		return err
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, fmt.Errorf("bus: subscribe: %w", err)
	}
	return &redisSubscription{ps: ps}, nil
}

func (b *RedisBus) HSet(ctx context.Context, key, field, value string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.client.HSet(ctx, key, field, value).Err()
	})
	if err == gobreaker.ErrOpenState {
		slog.Warn("bus: circuit open, skipping hset", "key", key)
		return nil
	}
	return err
}

func (b *RedisBus) HDel(ctx context.Context, key, field string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.client.HDel(ctx, key, field).Err()
	})
	if err == gobreaker.ErrOpenState {
		slog.Warn("bus: circuit open, skipping hdel", "key", key)
		return nil
	}
	return err
}

func (b *RedisBus) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.client.HGetAll(ctx, key).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			slog.Warn("bus: circuit open, returning empty hash", "key", key)
			return map[string]string{}, nil
		}
		return nil, err
	}
	return res.(map[string]string), nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

// redisSubscription wraps a single *redis.PubSub connection, which go-redis
// supports adding/removing channels on dynamically.
type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Listen(ctx context.Context) <-chan Message {
	out := make(chan Message, 64)
	ch := s.ps.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
			}
		}
	}()
	return out
}

func (s *redisSubscription) Subscribe(ctx context.Context, channels ...string) error {
	return s.ps.Subscribe(ctx, channels...)
}

func (s *redisSubscription) Unsubscribe(ctx context.Context, channels ...string) error {
	return s.ps.Unsubscribe(ctx, channels...)
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
