package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jycamier/chatfanout/backend/internal/bus"
)

func newRedisBus(t *testing.T) (*bus.RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return bus.NewRedisBusFromClient(client), mr
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	b, _ := newRedisBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer sub.Close()

	received := sub.Listen(ctx)

	// miniredis delivers pub/sub asynchronously; give the subscribe a beat.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "r1", []byte("hello")))

	select {
	case msg := <-received:
		assert.Equal(t, "r1", msg.Channel)
		assert.Equal(t, "hello", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisBusSubscribeUnsubscribe(t *testing.T) {
	b, _ := newRedisBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, sub.Subscribe(ctx, "r2"))
	require.NoError(t, sub.Unsubscribe(ctx, "r1"))

	received := sub.Listen(ctx)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, b.Publish(ctx, "r1", []byte("should not arrive")))
	require.NoError(t, b.Publish(ctx, "r2", []byte("should arrive")))

	select {
	case msg := <-received:
		assert.Equal(t, "r2", msg.Channel)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisBusHash(t *testing.T) {
	b, _ := newRedisBus(t)
	ctx := context.Background()

	require.NoError(t, b.HSet(ctx, "presence:r1", "u1", "conn-a"))
	require.NoError(t, b.HSet(ctx, "presence:r1", "u2", "conn-b"))

	all, err := b.HGetAll(ctx, "presence:r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "conn-a", "u2": "conn-b"}, all)

	require.NoError(t, b.HDel(ctx, "presence:r1", "u1"))
	all, err = b.HGetAll(ctx, "presence:r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u2": "conn-b"}, all)
}

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := bus.NewMemoryBus()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer sub.Close()

	received := sub.Listen(ctx)
	require.NoError(t, b.Publish(ctx, "u1", []byte("hi")))

	select {
	case msg := <-received:
		assert.Equal(t, "u1", msg.Channel)
		assert.Equal(t, "hi", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBusHash(t *testing.T) {
	b := bus.NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, b.HSet(ctx, "presence:r1", "u1", "conn-a"))
	all, err := b.HGetAll(ctx, "presence:r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "conn-a"}, all)

	require.NoError(t, b.HDel(ctx, "presence:r1", "u1"))
	all, err = b.HGetAll(ctx, "presence:r1")
	require.NoError(t, err)
	assert.Empty(t, all)
}
