package prune

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rai-project/go-prune/tensor"
)

func TestGraphCache(t *testing.T) {
	net, a, _ := twoLayers()
	ctx := context.Background()
	c := NewGraphCache()

	_, ok := c.Get("two")
	assert.False(t, ok)

	g1, err := c.Graph(ctx, "two", net, tensor.New(1, 4))
	require.NoError(t, err)
	g2, err := c.Graph(ctx, "two", net, tensor.New(1, 4))
	require.NoError(t, err)
	assert.Same(t, g1, g2)
	assert.Equal(t, 1, c.Len())

	// a graph pruned through Apply stays valid in the cache
	group, err := Propagate(g1, mustNode(t, g1, a), Out, []int{3})
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, group))
	cached, ok := c.Get("two")
	require.True(t, ok)
	assert.Equal(t, 9, mustNode(t, cached, a).Channels(Out))

	c.Invalidate("two")
	g3, err := c.Graph(ctx, "two", net, tensor.New(1, 4))
	require.NoError(t, err)
	assert.NotSame(t, g1, g3)

	other, _, _ := twoLayers()
	g4, err := c.Graph(ctx, "two", other, tensor.New(1, 4))
	require.NoError(t, err)
	assert.Equal(t, other, g4.Network(), "a different network under the same key is retraced")

	c.Flush()
	assert.Equal(t, 0, c.Len())
}

func TestGraphCacheTraceError(t *testing.T) {
	net, _, _ := twoLayers()
	c := NewGraphCache()
	_, err := c.Graph(context.Background(), "bad", net, tensor.New(1, 7))
	assert.ErrorIs(t, err, ErrTracingIncomplete)
	assert.Equal(t, 0, c.Len())
}
