package prune

import (
	"context"

	cache "github.com/patrickmn/go-cache"

	"github.com/rai-project/go-prune/nn"
	"github.com/rai-project/go-prune/tensor"
)

// GraphCache keeps traced graphs by key so that a network is traced once and
// pruned many times. A cached graph stays valid across Apply calls because Apply
// keeps its shape metadata current; call Invalidate after changing the network by
// other means.
type GraphCache struct {
	c *cache.Cache
}

func NewGraphCache() *GraphCache {
	return &GraphCache{c: cache.New(cache.NoExpiration, 0)}
}

func (gc *GraphCache) Get(key string) (*Graph, bool) {
	v, ok := gc.c.Get(key)
	if !ok {
		return nil, false
	}
	g, ok := v.(*Graph)
	return g, ok
}

func (gc *GraphCache) Put(key string, g *Graph) {
	gc.c.Set(key, g, cache.NoExpiration)
}

func (gc *GraphCache) Invalidate(key string) {
	gc.c.Delete(key)
}

func (gc *GraphCache) Flush() {
	gc.c.Flush()
}

func (gc *GraphCache) Len() int {
	return gc.c.ItemCount()
}

// Graph returns the graph cached under key, tracing net on example on a miss.
// A cached graph of a different network is treated as a miss.
func (gc *GraphCache) Graph(ctx context.Context, key string, net nn.Module, example *tensor.Tensor) (*Graph, error) {
	if g, ok := gc.Get(key); ok && g.network == net {
		log.WithField("key", key).Debug("graph cache hit")
		return g, nil
	}
	g, err := Trace(ctx, net, example)
	if err != nil {
		return nil, err
	}
	gc.Put(key, g)
	return g, nil
}
