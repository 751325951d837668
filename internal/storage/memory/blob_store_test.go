package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepscout/deepscout/internal/storage"
)

func TestPutThenGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "sources/x.md", "text/markdown", []byte("body"))
	require.NoError(t, err)
	require.Equal(t, "memory://sources/x.md", uri)

	data, err := store.GetObject(context.Background(), "sources/x.md")
	require.NoError(t, err)
	require.Equal(t, []byte("body"), data)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "a", "", []byte("abc"))
	require.NoError(t, err)

	data, err := store.GetObject(context.Background(), "a")
	require.NoError(t, err)
	data[0] = 'z'

	again, err := store.GetObject(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.GetObject(context.Background(), "nope")
	require.True(t, errors.Is(err, storage.ErrObjectNotFound))
}
