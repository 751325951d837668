package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepscout/deepscout/internal/storage"
)

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "nested", "cache")
	store, err := New(Config{BaseDir: base})
	require.NoError(t, err)
	require.NotNil(t, store)

	info, err := os.Stat(base)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsEmptyBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: "   "})
	require.Error(t, err)
}

func TestPutThenGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "sources/abc.md", "text/markdown", []byte("# hello"))
	require.NoError(t, err)
	require.Contains(t, uri, "file://")

	data, err := store.GetObject(context.Background(), "sources/abc.md")
	require.NoError(t, err)
	require.Equal(t, []byte("# hello"), data)
}

func TestGetMissingObject(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "sources/missing.md")
	require.True(t, errors.Is(err, storage.ErrObjectNotFound))
}

func TestPutRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.md", "", []byte("x"))
	require.Error(t, err)
}

func TestPutOverwritesExisting(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "a.md", "", []byte("old"))
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a.md", "", []byte("new"))
	require.NoError(t, err)

	data, err := store.GetObject(context.Background(), "a.md")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), data)
}
