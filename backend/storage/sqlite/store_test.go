package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwatch/backend/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "parties.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	party, err := s.Create(ctx, "movie night", "media/ref.mp4")
	require.NoError(t, err)
	require.NotEmpty(t, party.ID)

	got, err := s.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, "movie night", got.Name)
	assert.Equal(t, "media/ref.mp4", got.MediaRef)
	assert.Empty(t, got.HostConnectionID)
	assert.Zero(t, got.ParticipantCount)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrPartyNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first, err := s.Create(ctx, "first", "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := s.Create(ctx, "second", "")
	require.NoError(t, err)

	parties, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, parties, 2)
	assert.Equal(t, second.ID, parties[0].ID)
	assert.Equal(t, first.ID, parties[1].ID)
}

func TestTrySetHost_OnlyFirstClaimWins(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	party, err := s.Create(ctx, "movie night", "")
	require.NoError(t, err)

	claimed, err := s.TrySetHost(ctx, party.ID, "conn-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.TrySetHost(ctx, party.ID, "conn-2")
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := s.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, "conn-1", got.HostConnectionID)

	require.NoError(t, s.ClearHost(ctx, party.ID))
	claimed, err = s.TrySetHost(ctx, party.ID, "conn-2")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestParticipantCount_FlooredAtZero(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	party, err := s.Create(ctx, "movie night", "")
	require.NoError(t, err)

	n, err := s.IncrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DecrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.DecrementCount(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.IncrementCount(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrPartyNotFound)
}

func TestDeleteInactive(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	empty, err := s.Create(ctx, "empty", "")
	require.NoError(t, err)
	busy, err := s.Create(ctx, "busy", "")
	require.NoError(t, err)
	_, err = s.IncrementCount(ctx, busy.ID)
	require.NoError(t, err)

	n, err := s.DeleteInactive(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteInactive(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, empty.ID)
	require.ErrorIs(t, err, storage.ErrPartyNotFound)
	_, err = s.Get(ctx, busy.ID)
	require.NoError(t, err)
}

func TestReopen_KeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "parties.db")

	s, err := New(path)
	require.NoError(t, err)
	party, err := s.Create(ctx, "movie night", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	got, err := s.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, "movie night", got.Name)
}
