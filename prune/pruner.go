// Copyright 2016 go-mxnet-predictor Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prune

import (
	"context"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/rai-project/go-prune/nn"
	"github.com/rai-project/go-prune/tensor"
)

// Pruner ties a network to its dependency graph
type Pruner struct {
	net     nn.Module
	example *tensor.Tensor
	graph   *Graph
	options *Options
}

// Create a Pruner
// param net The network to prune in place
// param example An input the network accepts; only its shape matters
func New(ctx context.Context, net nn.Module, example *tensor.Tensor, opts ...Option) (*Pruner, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "new")
	defer span.Finish()

	options := NewOptions(append([]Option{Context(ctx)}, opts...)...)

	if net == nil {
		return nil, errors.New("invalid nil network")
	}
	if example == nil {
		return nil, errors.New("invalid nil example input")
	}

	var (
		g   *Graph
		err error
	)
	if options.cache != nil {
		g, err = options.cache.Graph(ctx, options.cacheKey, net, example)
	} else {
		g, err = Trace(ctx, net, example)
	}
	if err != nil {
		return nil, err
	}

	return &Pruner{
		net:     net,
		example: example,
		graph:   g,
		options: options,
	}, nil
}

func (p *Pruner) Graph() *Graph {
	return p.graph
}

func (p *Pruner) Network() nn.Module {
	return p.net
}

func (p *Pruner) Options() *Options {
	return p.options
}

// Group computes the pruning group for removing idxs along dim of module m.
func (p *Pruner) Group(ctx context.Context, m nn.Module, dim Dim, idxs []int, opts ...Option) (*Group, error) {
	n, ok := p.graph.NodeOf(m)
	if !ok {
		name := "<nil>"
		if m != nil {
			name = m.Name()
		}
		return nil, newError(ErrUnknownModule, nil, "module %s was not traced in %s", name, p.net.Name())
	}
	return propagate(p.graph, n, dim, idxs, p.options.with(append([]Option{Context(ctx)}, opts...)...))
}

// Apply mutates the network according to group and records it in the report
// when one is configured.
func (p *Pruner) Apply(ctx context.Context, group *Group) error {
	if group.graph != p.graph {
		return newError(ErrStaleGroup, group.trigger.Node, "group belongs to another graph")
	}
	before := nn.NumParams(p.net)
	start := time.Now()
	if err := Apply(ctx, group); err != nil {
		return err
	}
	after := nn.NumParams(p.net)
	if p.options.report != nil {
		p.options.report.Record(group, before, after, time.Since(start))
	}
	log.WithField("trigger", group.trigger.String()).Infof("removed %d parameters", before-after)
	return nil
}

// Prune computes and applies the group for m in one step.
func (p *Pruner) Prune(ctx context.Context, m nn.Module, dim Dim, idxs []int, opts ...Option) (*Group, error) {
	group, err := p.Group(ctx, m, dim, idxs, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Apply(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// Retrace rebuilds the graph from the current network. Groups computed before
// are stale afterwards.
func (p *Pruner) Retrace(ctx context.Context) error {
	example := tensor.New(p.graph.InputShape()...)
	g, err := Trace(ctx, p.net, example)
	if err != nil {
		return err
	}
	p.graph = g
	p.example = example
	if p.options.cache != nil {
		p.options.cache.Put(p.options.cacheKey, g)
	}
	return nil
}

func (p *Pruner) Stats() Stats {
	return p.graph.Stats()
}
