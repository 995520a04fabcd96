package prune

import (
	"context"

	"github.com/rai-project/go-prune/config"
	"github.com/rai-project/go-prune/nn"
)

type Options struct {
	ctx      context.Context
	minWidth int
	frozen   map[nn.Module]bool
	cache    *GraphCache
	cacheKey string
	report   *Report
}

type Option func(*Options)

func Context(c context.Context) Option {
	return func(o *Options) {
		o.ctx = c
	}
}

// MinWidth rejects groups that would leave fewer than n channels on any node.
func MinWidth(n int) Option {
	return func(o *Options) {
		o.minWidth = n
	}
}

// Frozen marks modules that must never be pruned. A group reaching one of them
// is rejected.
func Frozen(ms ...nn.Module) Option {
	return func(o *Options) {
		for _, m := range ms {
			o.frozen[m] = true
		}
	}
}

// WithCache makes the Pruner look up and store its graph in c under key.
func WithCache(c *GraphCache, key string) Option {
	return func(o *Options) {
		o.cache = c
		o.cacheKey = key
	}
}

// WithReport records every applied group in r.
func WithReport(r *Report) Option {
	return func(o *Options) {
		o.report = r
	}
}

func NewOptions(opts ...Option) *Options {
	options := &Options{
		ctx:      context.Background(),
		minWidth: config.App.MinWidth,
		frozen:   make(map[nn.Module]bool),
	}

	for _, o := range opts {
		o(options)
	}

	if options.minWidth < 1 {
		options.minWidth = 1
	}

	return options
}

func (o *Options) Context() context.Context {
	return o.ctx
}

func (o *Options) MinWidth() int {
	return o.minWidth
}

func (o *Options) IsFrozen(m nn.Module) bool {
	return m != nil && o.frozen[m]
}

// with returns a copy of o with extra options applied.
func (o *Options) with(opts ...Option) *Options {
	c := *o
	c.frozen = make(map[nn.Module]bool, len(o.frozen))
	for m := range o.frozen {
		c.frozen[m] = true
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}
