// Package room implements the Room Lifecycle (spec §4.7): creating public
// and direct rooms, inviting members, and soft-deleting rooms, each
// publishing the marked bus frame that lets every process sharing the bus
// keep its local connection state consistent (spec §9, "Cyclic
// subscription/post-hook").
package room

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/codec"
	"github.com/jycamier/chatfanout/backend/internal/growl"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

const maxRoomNameLen = 16

// Lifecycle owns room creation, invitation and deletion. It is store- and
// bus-aware but has no notion of a single connection's subscription set;
// the Message Router's inviteUser and deleteRoom handlers enforce "caller
// must be subscribed" before calling Invite or Delete.
type Lifecycle struct {
	store     store.Store
	bus       bus.Bus
	allRoomID uuid.UUID
}

func New(st store.Store, b bus.Bus, allRoomID uuid.UUID) *Lifecycle {
	return &Lifecycle{store: st, bus: b, allRoomID: allRoomID}
}

// CreatePublic validates the name, inserts the room and the requester's
// membership, and publishes a marked `addRoom` frame to the requester's own
// channel so every process's post-hook can subscribe that socket and
// perform a presence join.
func (l *Lifecycle) CreatePublic(ctx context.Context, requester uuid.UUID, name string) (chatmodel.Room, error) {
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameLen {
		return chatmodel.Room{}, growl.New("Room name must be between 1 and %d characters", maxRoomNameLen)
	}

	r := chatmodel.Room{
		ID:        uuid.New(),
		Name:      &name,
		IsPrivate: false,
		CreatedAt: time.Now(),
	}
	if err := l.store.CreateRoom(ctx, r); err != nil {
		return chatmodel.Room{}, fmt.Errorf("room: create public room: %w", err)
	}
	if err := l.store.CreateMembership(ctx, chatmodel.Membership{UserID: requester, RoomID: r.ID}); err != nil {
		return chatmodel.Room{}, fmt.Errorf("room: add creator as member: %w", err)
	}

	frame, err := codec.Encode(codec.Frame{
		Action: "addRoom",
		RoomID: r.ID.String(),
		Name:   name,
		Users:  []string{requester.String()},
	})
	if err != nil {
		return chatmodel.Room{}, fmt.Errorf("room: encode addRoom: %w", err)
	}

	if err := l.bus.Publish(ctx, "u"+requester.String(), codec.Mark(frame)); err != nil {
		return chatmodel.Room{}, fmt.Errorf("room: publish addRoom: %w", err)
	}

	return r, nil
}

// CreateDirect looks up an existing direct room for the pair. An active one
// rejects with a growl; a tombstoned one is un-tombstoned in place
// (idempotent, keeping the same room id); otherwise a fresh room is
// created. Concurrent callers for the same pair are serialized by the
// store's advisory lock (spec §9 Open Question #3); the loser observes
// store.ErrDirectRoomExists and growls identically to the race-free path.
func (l *Lifecycle) CreateDirect(ctx context.Context, userA, userB uuid.UUID) (chatmodel.Room, error) {
	lookup, err := l.store.LookupDirectRoom(ctx, userA, userB)
	switch {
	case err == nil && !lookup.Disabled:
		return chatmodel.Room{}, growl.New("Direct channel already exists")
	case err == nil && lookup.Disabled:
		if err := l.store.SetRoomDisabled(ctx, lookup.RoomID, false); err != nil {
			return chatmodel.Room{}, fmt.Errorf("room: un-tombstone direct room: %w", err)
		}
		r, err := l.store.GetRoom(ctx, lookup.RoomID)
		if err != nil {
			return chatmodel.Room{}, fmt.Errorf("room: reload un-tombstoned room: %w", err)
		}
		if err := l.publishAddDirectChannel(ctx, r, userA, userB); err != nil {
			return chatmodel.Room{}, err
		}
		return r, nil
	case errors.Is(err, store.ErrNotFound):
		r := chatmodel.Room{ID: uuid.New(), IsPrivate: true, CreatedAt: time.Now()}
		if err := l.store.CreateDirectRoom(ctx, r, userA, userB); err != nil {
			if errors.Is(err, store.ErrDirectRoomExists) {
				return chatmodel.Room{}, growl.New("Direct channel already exists")
			}
			return chatmodel.Room{}, fmt.Errorf("room: create direct room: %w", err)
		}
		if err := l.publishAddDirectChannel(ctx, r, userA, userB); err != nil {
			return chatmodel.Room{}, err
		}
		return r, nil
	default:
		return chatmodel.Room{}, fmt.Errorf("room: lookup direct room: %w", err)
	}
}

func (l *Lifecycle) publishAddDirectChannel(ctx context.Context, r chatmodel.Room, userA, userB uuid.UUID) error {
	frame, err := codec.Encode(codec.Frame{
		Action: "addDirectChannel",
		RoomID: r.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("room: encode addDirectChannel: %w", err)
	}
	marked := codec.Mark(frame)

	if err := l.bus.Publish(ctx, "u"+userA.String(), marked); err != nil {
		return fmt.Errorf("room: publish addDirectChannel to %s: %w", userA, err)
	}
	if userA == userB {
		return nil
	}
	if err := l.bus.Publish(ctx, "u"+userB.String(), marked); err != nil {
		return fmt.Errorf("room: publish addDirectChannel to %s: %w", userB, err)
	}
	return nil
}

// Invite adds userID to roomID. The caller must already have verified the
// inviter is subscribed to r<roomID>. Direct rooms reject every invite;
// inviting an existing member growls "already in channel".
func (l *Lifecycle) Invite(ctx context.Context, roomID, userID uuid.UUID, invitedName string, invitedSex chatmodel.Sex) error {
	r, err := l.store.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("room: invite: load room: %w", err)
	}
	if r.IsPrivate {
		return growl.New("Cannot invite to a direct channel")
	}

	if err := l.store.CreateMembership(ctx, chatmodel.Membership{UserID: userID, RoomID: roomID}); err != nil {
		if errors.Is(err, store.ErrAlreadyMember) {
			return growl.New("User is already in this channel")
		}
		return fmt.Errorf("room: invite: add membership: %w", err)
	}

	sex := int(invitedSex)
	broadcast, err := codec.Encode(codec.Frame{
		Action:  "addUserToAll",
		Channel: "r" + roomID.String(),
		UserID:  userID.String(),
		Name:    invitedName,
		Sex:     &sex,
	})
	if err != nil {
		return fmt.Errorf("room: invite: encode addUserToAll: %w", err)
	}
	if err := l.bus.Publish(ctx, "r"+roomID.String(), broadcast); err != nil {
		return fmt.Errorf("room: invite: publish addUserToAll: %w", err)
	}

	invite, err := codec.Encode(codec.Frame{
		Action: "inviteUser",
		RoomID: roomID.String(),
		Name:   derefString(r.Name),
	})
	if err != nil {
		return fmt.Errorf("room: invite: encode inviteUser: %w", err)
	}
	if err := l.bus.Publish(ctx, "u"+userID.String(), codec.Mark(invite)); err != nil {
		return fmt.Errorf("room: invite: publish inviteUser: %w", err)
	}

	return nil
}

// Delete soft-deletes roomID. The caller must already have verified the
// requester is subscribed to r<roomID>. ALL_ROOM and already-tombstoned
// rooms growl and mutate nothing.
func (l *Lifecycle) Delete(ctx context.Context, requester, roomID uuid.UUID) error {
	if roomID == l.allRoomID {
		return growl.New("Cannot delete the main room")
	}

	r, err := l.store.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("room: delete: load room: %w", err)
	}
	if r.IsTombstoned() {
		return growl.New("Room is already deleted")
	}

	if r.IsDirect() {
		if err := l.store.SetRoomDisabled(ctx, roomID, true); err != nil {
			return fmt.Errorf("room: delete: tombstone direct room: %w", err)
		}
	} else {
		if err := l.store.DeleteRoomMember(ctx, roomID, requester); err != nil {
			return fmt.Errorf("room: delete: remove membership: %w", err)
		}
	}

	frame, err := codec.Encode(codec.Frame{
		Action: "deleteRoom",
		RoomID: roomID.String(),
	})
	if err != nil {
		return fmt.Errorf("room: delete: encode deleteRoom: %w", err)
	}
	if err := l.bus.Publish(ctx, "r"+roomID.String(), codec.Mark(frame)); err != nil {
		return fmt.Errorf("room: delete: publish deleteRoom: %w", err)
	}

	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
