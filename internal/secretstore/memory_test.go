package secretstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "ref-1", []byte("secret")))
	data, err := m.Get(ctx, "ref-1")
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), data)

	require.NoError(t, m.Delete(ctx, "ref-1"))
	_, err = m.Get(ctx, "ref-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "a", []byte("1")))
	require.NoError(t, m.Put(ctx, "b", []byte("2")))

	refs, err := m.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, refs)
}
