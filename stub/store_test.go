package stub

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "stub.db"), os.DirFS("../migrations"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreCreateAndAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "alice", "password123")
	require.NoError(t, err)
	require.NotZero(t, id)

	user, err := store.Authenticate(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice", user.Username)

	_, err = store.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidUser)

	_, err = store.Authenticate(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidUser)
}

func TestStoreDuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, "alice", "password123")
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "alice", "otherpassword")
	assert.ErrorIs(t, err, ErrConflictedUser)
}

func TestStoreHistoryCoversBothDirections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveMessage(ctx, 1, 2, "one", base))
	require.NoError(t, store.SaveMessage(ctx, 2, 1, "two", base.Add(time.Second)))
	require.NoError(t, store.SaveMessage(ctx, 1, 3, "other conversation", base.Add(2*time.Second)))
	require.NoError(t, store.SaveMessage(ctx, 1, 2, "three", base.Add(3*time.Second)))

	messages, err := store.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Text)
	assert.Equal(t, "two", messages[1].Text)
	assert.Equal(t, "three", messages[2].Text)
	assert.True(t, messages[0].Timestamp.Equal(base))

	// Same conversation regardless of which side asks.
	mirrored, err := store.History(ctx, 2, 1)
	require.NoError(t, err)
	assert.Len(t, mirrored, 3)
}
