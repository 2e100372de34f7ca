package local

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/fgsamples/internal/blobstore"
)

func TestLocalBlobStorePutAndGet(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir(), "")
	require.NoError(t, err)

	ctx := context.Background()
	imageData := []byte("fake jpeg data")

	url, err := store.Put(ctx, "delish/choc_bar/img_1.jpg", "image/jpeg", bytes.NewReader(imageData))
	require.NoError(t, err)
	assert.Equal(t, "/photos/delish/choc_bar/img_1.jpg", url)

	reader, mimeType, err := store.Get(ctx, "delish/choc_bar/img_1.jpg")
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "image/jpeg", mimeType)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, imageData, data)
}

func TestLocalBlobStoreDelete(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir(), "")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Put(ctx, "a/b/c.png", "image/png", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "a/b/c.png"))

	_, _, err = store.Get(ctx, "a/b/c.png")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "a/b/c.png"), blobstore.ErrNotFound)
}

func TestLocalBlobStorePathTraversal(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir(), "")
	require.NoError(t, err)

	ctx := context.Background()

	_, _, err = store.Get(ctx, "../../etc/passwd")
	assert.Error(t, err)

	_, err = store.Put(ctx, "../escape.jpg", "image/jpeg", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestLocalBlobStoreKeyFromURL(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir(), "https://cdn.example.com/img/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "a/b.jpg", "image/jpeg", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/img/a/b.jpg", url)

	key, ok := store.KeyFromURL(url)
	assert.True(t, ok)
	assert.Equal(t, "a/b.jpg", key)

	_, ok = store.KeyFromURL("https://elsewhere.example.com/a/b.jpg")
	assert.False(t, ok)
}
