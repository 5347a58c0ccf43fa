package rpcapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaclave-go/platform/internal/storage"
)

func TestRemoteBackendRoundTripsThroughMeshRouter(t *testing.T) {
	backend := storage.NewMemoryBackend()
	srv := httptest.NewServer(NewStorageMeshRouter(backend))
	defer srv.Close()

	remote := NewRemoteBackend(srv.URL, nil)
	ctx := context.Background()

	require.NoError(t, remote.Put(ctx, "function-1", []byte("hello")))
	got, err := remote.Get(ctx, "function-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	keys, err := remote.GetKeysByPrefix(ctx, "function-")
	require.NoError(t, err)
	assert.Contains(t, keys, "function-1")

	require.NoError(t, remote.CompareAndSwap(ctx, "function-1", []byte("hello"), []byte("world")))
	err = remote.CompareAndSwap(ctx, "function-1", []byte("hello"), []byte("conflict"))
	assert.Error(t, err)

	require.NoError(t, remote.Enqueue(ctx, "q", []byte("item-1")))
	value, ok, err := remote.Dequeue(ctx, "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("item-1"), value)

	require.NoError(t, remote.Delete(ctx, "function-1"))
	_, err = remote.Get(ctx, "function-1")
	assert.Error(t, err)
}
