package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaclave-go/platform/internal/taclerr"
)

func TestMemoryBackendGetPutDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	_, err := b.Get(ctx, "missing")
	assert.Equal(t, taclerr.CategoryNotFound, taclerr.Classify(err))

	require.NoError(t, b.Put(ctx, "k", []byte("v1")))
	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	require.NoError(t, b.Delete(ctx, "k"))
	_, err = b.Get(ctx, "k")
	assert.Equal(t, taclerr.CategoryNotFound, taclerr.Classify(err))
}

func TestMemoryBackendCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.CompareAndSwap(ctx, "task-1", nil, []byte("v1")))
	err := b.CompareAndSwap(ctx, "task-1", nil, []byte("v2"))
	assert.Equal(t, taclerr.CategoryConflict, taclerr.Classify(err))

	require.NoError(t, b.CompareAndSwap(ctx, "task-1", []byte("v1"), []byte("v2")))
	v, _ := b.Get(ctx, "task-1")
	assert.Equal(t, "v2", string(v))

	err = b.CompareAndSwap(ctx, "task-1", []byte("stale"), []byte("v3"))
	assert.Equal(t, taclerr.CategoryConflict, taclerr.Classify(err))
}

func TestMemoryBackendKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Put(ctx, PrefixTask+"1", []byte("a")))
	require.NoError(t, b.Put(ctx, PrefixTask+"2", []byte("b")))
	require.NoError(t, b.Put(ctx, PrefixFunction+"1", []byte("c")))

	keys, err := b.GetKeysByPrefix(ctx, PrefixTask)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestMemoryBackendQueueFIFO(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	_, ok, err := b.Dequeue(ctx, QueueStagedTasks)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Enqueue(ctx, QueueStagedTasks, []byte("first")))
	require.NoError(t, b.Enqueue(ctx, QueueStagedTasks, []byte("second")))

	v, ok, err := b.Dequeue(ctx, QueueStagedTasks)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(v))

	v, ok, err = b.Dequeue(ctx, QueueStagedTasks)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(v))

	_, ok, err = b.Dequeue(ctx, QueueStagedTasks)
	require.NoError(t, err)
	assert.False(t, ok)
}
