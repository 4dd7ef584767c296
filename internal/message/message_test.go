package message_test

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
	"github.com/jycamier/chatfanout/backend/internal/message"
	"github.com/jycamier/chatfanout/backend/internal/store/storetest"
)

type fixedSubs struct{ channels map[string]bool }

func (s fixedSubs) IsSubscribed(channel string) bool { return s.channels[channel] }

func newUser(st *storetest.MemStore, name string) chatmodel.User {
	u := chatmodel.User{ID: uuid.New(), Username: name}
	st.AddUser(u)
	return u
}

func TestSendDirectMessageDeliversToSenderAndReceiver(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	pipe := message.New(st, b, nil, 2000)
	ctx := context.Background()

	alice := newUser(st, "alice")
	bob := newUser(st, "bob")

	subAlice, err := b.Subscribe(ctx, "u"+alice.ID.String())
	require.NoError(t, err)
	subBob, err := b.Subscribe(ctx, "u"+bob.ID.String())
	require.NoError(t, err)

	aliceMsgs := subAlice.Listen(ctx)
	bobMsgs := subBob.Listen(ctx)

	subs := fixedSubs{channels: map[string]bool{"u" + bob.ID.String(): true}}
	err = pipe.Send(ctx, alice, message.Input{Content: "hi", Channel: "u" + bob.ID.String()}, subs)
	require.NoError(t, err)

	aliceFrame := decodeFrame(t, <-aliceMsgs)
	bobFrame := decodeFrame(t, <-bobMsgs)

	assert.Equal(t, "printMessage", aliceFrame.Action)
	assert.Equal(t, bob.ID.String(), aliceFrame.ReceiverID)
	assert.Equal(t, "bob", aliceFrame.ReceiverName)
	assert.Equal(t, aliceFrame, bobFrame)
}

func TestSendDirectMessageToSelfDeliversOnce(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	pipe := message.New(st, b, nil, 2000)
	ctx := context.Background()

	alice := newUser(st, "alice")

	sub, err := b.Subscribe(ctx, "u"+alice.ID.String())
	require.NoError(t, err)
	msgs := sub.Listen(ctx)

	subs := fixedSubs{channels: map[string]bool{"u" + alice.ID.String(): true}}
	err = pipe.Send(ctx, alice, message.Input{Content: "note to self", Channel: "u" + alice.ID.String()}, subs)
	require.NoError(t, err)

	<-msgs
	select {
	case m := <-msgs:
		t.Fatalf("expected exactly one delivery, got a second: %+v", m)
	default:
	}
}

func TestSendRoomMessageRejectsUnsubscribedChannel(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	pipe := message.New(st, b, nil, 2000)
	ctx := context.Background()

	alice := newUser(st, "alice")
	room := uuid.New()

	subs := fixedSubs{channels: map[string]bool{}}
	err := pipe.Send(ctx, alice, message.Input{Content: "hi", Channel: "r" + room.String()}, subs)

	var g *growl.Error
	require.ErrorAs(t, err, &g)
	assert.Contains(t, g.Message, "Access denied")
}

func TestSendRejectsOverlongMessage(t *testing.T) {
	st := storetest.New()
	b := bus.NewMemoryBus()
	pipe := message.New(st, b, nil, 5)
	ctx := context.Background()

	alice := newUser(st, "alice")
	subs := fixedSubs{channels: map[string]bool{"u" + alice.ID.String(): true}}

	err := pipe.Send(ctx, alice, message.Input{Content: "way too long", Channel: "u" + alice.ID.String()}, subs)
	var g *growl.Error
	require.ErrorAs(t, err, &g)
}

func decodeFrame(t *testing.T, m bus.Message) codec.Frame {
	t.Helper()
	f, err := codec.Decode(m.Payload)
	require.NoError(t, err)
	return f
}
