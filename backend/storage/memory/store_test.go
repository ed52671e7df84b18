package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwatch/backend/storage"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()

	party, err := ms.Create(ctx, "movie night", "media/ref.mp4")
	require.NoError(t, err)
	require.NotEmpty(t, party.ID)
	assert.Equal(t, "movie night", party.Name)
	assert.Equal(t, "media/ref.mp4", party.MediaRef)
	assert.Empty(t, party.HostConnectionID)
	assert.Zero(t, party.ParticipantCount)

	got, err := ms.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, party.ID, got.ID)

	_, err = ms.Get(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrPartyNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()

	first, err := ms.Create(ctx, "first", "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := ms.Create(ctx, "second", "")
	require.NoError(t, err)

	parties, err := ms.List(ctx)
	require.NoError(t, err)
	require.Len(t, parties, 2)
	assert.Equal(t, second.ID, parties[0].ID)
	assert.Equal(t, first.ID, parties[1].ID)
}

func TestTrySetHost_OnlyFirstClaimWins(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()

	party, err := ms.Create(ctx, "movie night", "")
	require.NoError(t, err)

	claimed, err := ms.TrySetHost(ctx, party.ID, "conn-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = ms.TrySetHost(ctx, party.ID, "conn-2")
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := ms.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, "conn-1", got.HostConnectionID)

	require.NoError(t, ms.ClearHost(ctx, party.ID))
	claimed, err = ms.TrySetHost(ctx, party.ID, "conn-2")
	require.NoError(t, err)
	assert.True(t, claimed)

	_, err = ms.TrySetHost(ctx, "missing", "conn-1")
	require.ErrorIs(t, err, storage.ErrPartyNotFound)
}

func TestParticipantCount_FlooredAtZero(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()

	party, err := ms.Create(ctx, "movie night", "")
	require.NoError(t, err)

	n, err := ms.IncrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = ms.IncrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ms.DecrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = ms.DecrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Duplicate leaves never push the count below zero.
	n, err = ms.DecrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteInactive(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore()

	empty, err := ms.Create(ctx, "empty", "")
	require.NoError(t, err)
	busy, err := ms.Create(ctx, "busy", "")
	require.NoError(t, err)
	_, err = ms.IncrementCount(ctx, busy.ID)
	require.NoError(t, err)

	// Cutoff in the past deletes nothing.
	n, err := ms.DeleteInactive(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// Cutoff after the last activity deletes only the empty party.
	n, err = ms.DeleteInactive(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ms.Get(ctx, empty.ID)
	require.ErrorIs(t, err, storage.ErrPartyNotFound)
	_, err = ms.Get(ctx, busy.ID)
	require.NoError(t, err)
}
