package presence_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/presence"
)

func TestJoinFirstTabIsLogin(t *testing.T) {
	b := bus.NewMemoryBus()
	tr := presence.New(b)
	ctx := context.Background()

	room := uuid.New()
	alice := uuid.New()

	online, err := tr.Join(ctx, room, "conn-1", alice)
	require.NoError(t, err)
	assert.True(t, online.IsLogin)
	assert.ElementsMatch(t, []uuid.UUID{alice}, online.UserIDs)
}

func TestJoinSecondTabIsRefreshNotLogin(t *testing.T) {
	b := bus.NewMemoryBus()
	tr := presence.New(b)
	ctx := context.Background()

	room := uuid.New()
	alice := uuid.New()

	_, err := tr.Join(ctx, room, "conn-1", alice)
	require.NoError(t, err)

	online, err := tr.Join(ctx, room, "conn-2", alice)
	require.NoError(t, err)
	assert.False(t, online.IsLogin, "second tab of the same user must not trigger LOGIN")
	assert.ElementsMatch(t, []uuid.UUID{alice}, online.UserIDs)
}

func TestLeaveLastConnIsLogout(t *testing.T) {
	b := bus.NewMemoryBus()
	tr := presence.New(b)
	ctx := context.Background()

	room := uuid.New()
	alice := uuid.New()

	_, err := tr.Join(ctx, room, "conn-1", alice)
	require.NoError(t, err)

	online, isLast, err := tr.Leave(ctx, room, "conn-1", alice)
	require.NoError(t, err)
	assert.True(t, isLast)
	assert.Empty(t, online.UserIDs)
}

func TestLeaveOtherTabStillOnlineIsSilent(t *testing.T) {
	b := bus.NewMemoryBus()
	tr := presence.New(b)
	ctx := context.Background()

	room := uuid.New()
	alice := uuid.New()

	_, err := tr.Join(ctx, room, "conn-1", alice)
	require.NoError(t, err)
	_, err = tr.Join(ctx, room, "conn-2", alice)
	require.NoError(t, err)

	online, isLast, err := tr.Leave(ctx, room, "conn-1", alice)
	require.NoError(t, err)
	assert.False(t, isLast)
	assert.ElementsMatch(t, []uuid.UUID{alice}, online.UserIDs)
}

func TestMultiUserOnlineList(t *testing.T) {
	b := bus.NewMemoryBus()
	tr := presence.New(b)
	ctx := context.Background()

	room := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	_, err := tr.Join(ctx, room, "conn-alice", alice)
	require.NoError(t, err)
	online, err := tr.Join(ctx, room, "conn-bob", bob)
	require.NoError(t, err)

	assert.True(t, online.IsLogin)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, online.UserIDs)
}
