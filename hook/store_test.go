package hook_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sciforge/toolbridge/hook"
	"github.com/sciforge/toolbridge/protocol"
)

func newStore(t *testing.T, ttl time.Duration) *hook.ArtifactStore {
	t.Helper()
	store, err := hook.NewArtifactStore(filepath.Join(t.TempDir(), "artifacts.db"), ttl, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestArtifactStore_PutGet(t *testing.T) {
	t.Parallel()
	store := newStore(t, time.Hour)
	ctx := context.Background()

	a, err := store.Put(ctx, "pubmed_search", "a very large payload")
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.False(t, a.ExpiresAt.IsZero())

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "pubmed_search", got.Tool)
	require.Equal(t, "a very large payload", got.Content)
	require.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Second)
}

func TestArtifactStore_GetUnknownID(t *testing.T) {
	t.Parallel()
	store := newStore(t, time.Hour)

	_, err := store.Get(context.Background(), "no-such-id")
	require.Error(t, err)
	require.Equal(t, protocol.KindNotFound, protocol.KindOf(err))
}

func TestArtifactStore_ExpiryHidesArtifact(t *testing.T) {
	t.Parallel()
	store := newStore(t, time.Millisecond)
	ctx := context.Background()

	a, err := store.Put(ctx, "lookup", "ephemeral")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = store.Get(ctx, a.ID)
	require.Error(t, err)
	require.Equal(t, protocol.KindNotFound, protocol.KindOf(err))
}

func TestArtifactStore_Sweep(t *testing.T) {
	t.Parallel()
	store := newStore(t, time.Millisecond)
	ctx := context.Background()

	_, err := store.Put(ctx, "lookup", "one")
	require.NoError(t, err)
	_, err = store.Put(ctx, "lookup", "two")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	n, err := store.Sweep(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = store.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestArtifactStore_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()
	store := newStore(t, 0)
	ctx := context.Background()

	a, err := store.Put(ctx, "lookup", "permanent")
	require.NoError(t, err)
	require.True(t, a.ExpiresAt.IsZero())

	n, err := store.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "permanent", got.Content)
}
