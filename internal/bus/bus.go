// Package bus implements the Bus Adapter (spec §4.2): publish/subscribe
// against opaque channel strings plus the hash-map operations the
// Presence Tracker needs. Two reserved channel prefixes exist: u<userId>
// for per-user fan-in, r<roomId> for per-room fan-out.
package bus

import (
	"context"
)

// Message is one frame delivered by Listen: the channel it arrived on and
// its raw payload (still carrying the parsable-prefix byte, if any — the
// codec package interprets it, the bus only moves bytes).
type Message struct {
	Channel string
	Payload []byte
}

// Bus is the Bus Adapter contract. Each connection is expected to hold its
// own Subscription (an independent subscriber link, per §4.2); Publish and
// the hash ops are shared process-wide.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a Subscription delivering messages for the given
	// channels in arrival order per channel (no ordering guarantee across
	// channels). The connection owns the Subscription's lifecycle.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key, field string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	Close() error
}

// Subscription is one connection's independent link to the bus.
type Subscription interface {
	// Listen delivers frames until the context is canceled or the
	// subscription is closed; it is meant to run in its own goroutine.
	Listen(ctx context.Context) <-chan Message

	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error

	Close() error
}
