package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-kb/internal/storage"
)

func TestBlobStoreCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/corpus.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://path/corpus.json", uri)

	got, err := store.GetObject(context.Background(), "path/corpus.json")
	require.NoError(t, err)
	got[0] = 'C'

	again, err := store.GetObject(context.Background(), "path/corpus.json")
	require.NoError(t, err)
	assert.Equal(t, "content", string(again))
}

func TestBlobStoreMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
