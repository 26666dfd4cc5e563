package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/repository/repotest"
)

func TestRoomJoin_InsertOrReplace(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ctx := context.Background()
	room := &models.Room{EventID: "e1", Name: "Fintech corner"}
	require.NoError(t, reg.Rooms.Create(ctx, room))

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first, err := reg.Rooms.Join(ctx, room.ID, "u1", t0)
	require.NoError(t, err)
	second, err := reg.Rooms.Join(ctx, room.ID, "u1", t0.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.JoinedAt.After(first.JoinedAt))

	participants, err := reg.Rooms.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}

func TestRoomJoin_UnknownRoom(t *testing.T) {
	reg := repotest.NewRegistry(t)
	_, err := reg.Rooms.Join(context.Background(), "missing", "u1", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRoomJoin_Capacity(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ctx := context.Background()
	capacity := 2
	room := &models.Room{EventID: "e1", Name: "Small", Capacity: &capacity}
	require.NoError(t, reg.Rooms.Create(ctx, room))
	now := time.Now()

	_, err := reg.Rooms.Join(ctx, room.ID, "u1", now)
	require.NoError(t, err)
	_, err = reg.Rooms.Join(ctx, room.ID, "u2", now)
	require.NoError(t, err)

	_, err = reg.Rooms.Join(ctx, room.ID, "u3", now)
	assert.ErrorIs(t, err, repository.ErrRoomFull)

	// Rejoining while already inside never counts against capacity.
	_, err = reg.Rooms.Join(ctx, room.ID, "u2", now)
	assert.NoError(t, err)
}

func TestRoomLeave_NoopWhenAbsent(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ctx := context.Background()
	room := &models.Room{EventID: "e1", Name: "Main"}
	require.NoError(t, reg.Rooms.Create(ctx, room))

	removed, err := reg.Rooms.Leave(ctx, room.ID, "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = reg.Rooms.Join(ctx, room.ID, "u1", time.Now())
	require.NoError(t, err)
	removed, err = reg.Rooms.Leave(ctx, room.ID, "u1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestRoomListByEvent_OrderedByName(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ctx := context.Background()
	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		require.NoError(t, reg.Rooms.Create(ctx, &models.Room{EventID: "e1", Name: name}))
	}
	require.NoError(t, reg.Rooms.Create(ctx, &models.Room{EventID: "e2", Name: "Elsewhere"}))

	rooms, err := reg.Rooms.ListByEvent(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, []string{rooms[0].Name, rooms[1].Name, rooms[2].Name})
}
