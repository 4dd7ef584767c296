package room_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/codec"
	"github.com/jycamier/chatfanout/backend/internal/growl"
	"github.com/jycamier/chatfanout/backend/internal/room"
	"github.com/jycamier/chatfanout/backend/internal/store/storetest"
)

func TestCreatePublicRejectsEmptyName(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())

	_, err := lc.CreatePublic(context.Background(), uuid.New(), "")
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func TestCreatePublicRejectsTooLongName(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())

	_, err := lc.CreatePublic(context.Background(), uuid.New(), "this-name-is-way-too-long")
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func TestCreatePublicPublishesAddRoomToSelf(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())
	ctx := context.Background()

	alice := uuid.New()
	sub, err := b.Subscribe(ctx, "u"+alice.String())
	require.NoError(t, err)
	msgs := sub.Listen(ctx)

	r, err := lc.CreatePublic(ctx, alice, "general")
	require.NoError(t, err)

	frame := decodeFrame(t, <-msgs)
	assert.Equal(t, "addRoom", frame.Action)
	assert.Equal(t, r.ID.String(), frame.RoomID)
	assert.Equal(t, []string{alice.String()}, frame.Users)
}

func TestCreateDirectRejectsIfActiveExists(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	_, err := lc.CreateDirect(ctx, alice, bob)
	require.NoError(t, err)

	_, err = lc.CreateDirect(ctx, alice, bob)
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func TestCreateDirectUnTombstonesExisting(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	first, err := lc.CreateDirect(ctx, alice, bob)
	require.NoError(t, err)

	require.NoError(t, lc.Delete(ctx, alice, first.ID))

	second, err := lc.CreateDirect(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	reloaded, err := st.GetRoom(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsTombstoned())
}

func TestDeleteRejectsAllRoom(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	allRoom := uuid.New()
	lc := room.New(st, b, allRoom)
	require.NoError(t, st.CreateRoom(context.Background(), chatmodel.Room{ID: allRoom}))

	err := lc.Delete(context.Background(), uuid.New(), allRoom)
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func TestDeleteRejectsAlreadyTombstoned(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	r, err := lc.CreateDirect(ctx, alice, bob)
	require.NoError(t, err)
	require.NoError(t, lc.Delete(ctx, alice, r.ID))

	err = lc.Delete(ctx, alice, r.ID)
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func TestInviteRejectsDirectRoom(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())
	ctx := context.Background()

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	r, err := lc.CreateDirect(ctx, alice, bob)
	require.NoError(t, err)

	err = lc.Invite(ctx, r.ID, carol, "carol", chatmodel.SexSecret)
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func TestInviteRejectsExistingMember(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())
	ctx := context.Background()

	alice := uuid.New()
	r, err := lc.CreatePublic(ctx, alice, "general")
	require.NoError(t, err)

	err = lc.Invite(ctx, r.ID, alice, "alice", chatmodel.SexSecret)
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func TestInvitePublishesSexForMaleInvitee(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	lc := room.New(st, b, uuid.New())
	ctx := context.Background()

	alice := uuid.New()
	r, err := lc.CreatePublic(ctx, alice, "general")
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, "r"+r.ID.String())
	require.NoError(t, err)
	msgs := sub.Listen(ctx)

	bob := uuid.New()
	require.NoError(t, lc.Invite(ctx, r.ID, bob, "bob", chatmodel.SexMale))

	raw := (<-msgs).Payload
	assert.Contains(t, string(raw), `"sex":0`)

	frame := decodeFrame(t, bus.Message{Payload: raw})
	assert.Equal(t, "addUserToAll", frame.Action)
	require.NotNil(t, frame.Sex)
	assert.Equal(t, 0, *frame.Sex)
}

func decodeFrame(t *testing.T, m bus.Message) codec.Frame {
	t.Helper()
	f, err := codec.Decode(m.Payload)
	require.NoError(t, err)
	return f
}
