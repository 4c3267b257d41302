package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopRoundTrip(t *testing.T) {
	q := New[int](2)
	ctx := context.Background()

	require.True(t, q.Push(ctx, 1))
	require.True(t, q.Push(ctx, 2))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())

	v, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPushBlocksUntilContextCancelled(t *testing.T) {
	q := New[int](1)
	require.True(t, q.Push(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, q.Push(ctx, 2))
}

func TestPopDrainsBeforeHonoringClose(t *testing.T) {
	q := New[int](4)
	require.True(t, q.Push(context.Background(), 1))
	require.True(t, q.Push(context.Background(), 2))
	q.Close()

	v, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Pop(context.Background())
	assert.False(t, ok)
}

func TestTryPopNeverBlocks(t *testing.T) {
	q := New[int](1)
	_, ok := q.TryPop()
	assert.False(t, ok)

	require.True(t, q.Push(context.Background(), 7))
	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestClearDropsQueuedItemsWithoutClosing(t *testing.T) {
	q := New[int](4)
	require.True(t, q.Push(context.Background(), 1))
	require.True(t, q.Push(context.Background(), 2))
	q.Clear()
	assert.Equal(t, 0, q.Len())

	require.True(t, q.Push(context.Background(), 3))
	v, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestNewClampsCapacityToAtLeastOne(t *testing.T) {
	q := New[int](0)
	assert.Equal(t, 1, q.Cap())
}
