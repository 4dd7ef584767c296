// Package presence implements the Presence Tracker (spec §4.4): a per-room
// bus hash mapping connection id to user id, and the multi-tab LOGIN /
// LOGOUT / REFRESH_USER semantics derived from it.
package presence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/bus"
)

// Online is the outcome of a Join: the room's full online user-id list and
// whether this connection caused a LOGIN transition.
type Online struct {
	RoomID  uuid.UUID
	UserIDs []uuid.UUID
	// IsLogin is true iff no other connection already mapped to this user id
	// in the room, per spec §4.4 "Login semantics".
	IsLogin bool
}

// Tracker reads and writes the presence hash. It has no notion of sockets or
// broadcasting; callers (the Connection Supervisor) decide what to do with
// the Online result.
type Tracker struct {
	bus bus.Bus
}

func New(b bus.Bus) *Tracker {
	return &Tracker{bus: b}
}

func roomKey(roomID uuid.UUID) string {
	return "r" + roomID.String()
}

// Join writes connID -> userID into the room's presence hash and derives
// the current online user set. The presence hash is a grow-set keyed by
// connection id: writes are idempotent and require no locking (spec §9,
// "Presence as CRDT").
func (t *Tracker) Join(ctx context.Context, roomID uuid.UUID, connID string, userID uuid.UUID) (Online, error) {
	key := roomKey(roomID)
	if err := t.bus.HSet(ctx, key, connID, userID.String()); err != nil {
		return Online{}, fmt.Errorf("presence: join: %w", err)
	}

	all, err := t.bus.HGetAll(ctx, key)
	if err != nil {
		return Online{}, fmt.Errorf("presence: join: read hash: %w", err)
	}

	isLogin := true
	for field, val := range all {
		if field == connID {
			continue
		}
		if val == userID.String() {
			isLogin = false
			break
		}
	}

	return Online{RoomID: roomID, UserIDs: distinctUserIDs(all), IsLogin: isLogin}, nil
}

// Leave removes connID from the room's presence hash and reports whether
// the departing user's last connection to this room just closed (spec
// §4.4 "Logout semantics"). isLastConn is false when no broadcast should
// be emitted (the user has another live connection in the room).
func (t *Tracker) Leave(ctx context.Context, roomID uuid.UUID, connID string, userID uuid.UUID) (online Online, isLastConn bool, err error) {
	key := roomKey(roomID)
	if err := t.bus.HDel(ctx, key, connID); err != nil {
		return Online{}, false, fmt.Errorf("presence: leave: %w", err)
	}

	all, err := t.bus.HGetAll(ctx, key)
	if err != nil {
		return Online{}, false, fmt.Errorf("presence: leave: read hash: %w", err)
	}

	target := userID.String()
	for _, val := range all {
		if val == target {
			return Online{RoomID: roomID, UserIDs: distinctUserIDs(all)}, false, nil
		}
	}

	return Online{RoomID: roomID, UserIDs: distinctUserIDs(all)}, true, nil
}

func distinctUserIDs(hash map[string]string) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(hash))
	out := make([]uuid.UUID, 0, len(hash))
	for _, v := range hash {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
