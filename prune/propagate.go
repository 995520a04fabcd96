package prune

import (
	opentracing "github.com/opentracing/opentracing-go"
)

type handle struct {
	node *Node
	dim  Dim
}

// closure computes the least fixed point of index constraints reachable from a
// trigger. Sets only grow, and each is bounded by its node's channel count, so the
// loop terminates on any finite graph, cyclic or not.
type closure struct {
	feeds  []feed
	state  map[handle]IndexSet
	order  []handle
	queue  []handle
	queued map[handle]bool
}

func (c *closure) push(h handle, s IndexSet) {
	if s.Len() == 0 {
		return
	}
	old, seen := c.state[h]
	merged := old.Union(s)
	if seen && merged.Len() == old.Len() {
		return
	}
	c.state[h] = merged
	if !seen {
		c.order = append(c.order, h)
	}
	if !c.queued[h] {
		c.queued[h] = true
		c.queue = append(c.queue, h)
	}
}

func (c *closure) pop() handle {
	h := c.queue[0]
	c.queue = c.queue[1:]
	c.queued[h] = false
	return h
}

func (c *closure) visit(h handle) error {
	n := h.node
	s := c.state[h]
	rule, ok := RuleOf(n.Kind)
	if !ok {
		return newError(ErrUnsupportedOperation, n, "no pruning rule for op %s", n.Op)
	}

	switch n.Kind {
	case KindReshape:
		if err := checkReshape(n); err != nil {
			return err
		}
	case KindGroupedConv:
		in, out := groupClosure(n, h.dim, s)
		c.push(handle{n, In}, in)
		c.push(handle{n, Out}, out)
	}

	if h.dim == Out || rule.Coupled {
		for _, e := range n.out {
			t, err := Translate(e.Kind(), Forward, s, e.Meta())
			if err != nil {
				return newError(ErrUnsupportedOperation, n, "%v: %v", e, err)
			}
			c.push(handle{e.To, e.To.canonical(In)}, t)
		}
	}
	if h.dim == In || rule.Coupled {
		for _, e := range n.in {
			t, err := Translate(e.Kind(), Backward, s, e.Meta())
			if err != nil {
				return newError(ErrUnsupportedOperation, n, "%v: %v", e, err)
			}
			c.push(handle{e.From, e.From.canonical(Out)}, t)
		}
		return c.shareInput(n, s)
	}
	return nil
}

// shareInput carries channels removed from one reader of the network input over
// to every other reader, so they keep agreeing on its width.
func (c *closure) shareInput(n *Node, s IndexSet) error {
	for _, f := range c.feeds {
		if f.node != n {
			continue
		}
		t, err := throughPort(f, Backward, s)
		if err != nil {
			return err
		}
		if t.Len() == 0 {
			continue
		}
		for _, o := range c.feeds {
			if o == f {
				continue
			}
			u, err := throughPort(o, Forward, t)
			if err != nil {
				return err
			}
			c.push(handle{o.node, o.node.canonical(In)}, u)
		}
	}
	return nil
}

// throughPort maps indices between the network input and the channel space of
// the node reading it.
func throughPort(f feed, dir Direction, s IndexSet) (IndexSet, error) {
	n := f.node
	if n.Kind != KindConcat || f.port >= len(n.Segments) {
		return s, nil
	}
	t, err := Translate(EdgeConcat, dir, s, EdgeMeta{Dst: n.Segments[f.port]})
	if err != nil {
		return nil, newError(ErrUnsupportedOperation, n, "input %d: %v", f.port, err)
	}
	return t, nil
}

// Propagate expands the removal of idxs along dim of trigger into the group of
// every (node, dim, indices) that must be removed with it. Nothing is returned
// unless the whole group is valid.
func Propagate(g *Graph, trigger *Node, dim Dim, idxs []int, opts ...Option) (*Group, error) {
	return propagate(g, trigger, dim, idxs, NewOptions(opts...))
}

func propagate(g *Graph, trigger *Node, dim Dim, idxs []int, options *Options) (*Group, error) {
	span, _ := opentracing.StartSpanFromContext(options.Context(), "propagate")
	defer span.Finish()

	group, err := closeOver(g, trigger, dim, idxs, options)
	if err != nil {
		span.SetTag("error", true)
		log.WithError(err).Debug("propagation failed")
		return nil, err
	}
	span.SetTag("trigger", trigger.Name)
	span.SetTag("entries", group.Len())
	log.WithField("trigger", trigger.describe()).Debugf("group of %d entries", group.Len())
	return group, nil
}

func closeOver(g *Graph, trigger *Node, dim Dim, idxs []int, options *Options) (*Group, error) {
	if !g.contains(trigger) {
		return nil, newError(ErrUnknownModule, trigger, "node is not part of the graph")
	}
	if _, ok := RuleOf(trigger.Kind); !ok {
		return nil, newError(ErrUnsupportedOperation, trigger, "no pruning rule for op %s", trigger.Op)
	}
	dim = trigger.canonical(dim)
	set := NewIndexSet(idxs...)
	size := trigger.Channels(dim)
	switch {
	case set.Len() == 0:
		return nil, newError(ErrInvalidIndex, trigger, "empty index set")
	case set[0] < 0:
		return nil, newError(ErrInvalidIndex, trigger, "negative index %d", set[0])
	case set.Max() >= size:
		return nil, newError(ErrInvalidIndex, trigger, "index %d out of range for %s dimension of size %d", set.Max(), dim, size)
	}

	c := &closure{
		feeds:  g.feeds,
		state:  make(map[handle]IndexSet),
		queued: make(map[handle]bool),
	}
	c.push(handle{trigger, dim}, set)
	for len(c.queue) > 0 {
		if err := c.visit(c.pop()); err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(c.order))
	for _, h := range c.order {
		s := c.state[h]
		if err := validate(h, s, options); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Node: h.node, Dim: h.dim, Indices: s})
	}
	return &Group{
		graph:   g,
		trigger: entries[0],
		entries: entries,
		version: g.version,
	}, nil
}

func validate(h handle, s IndexSet, options *Options) error {
	n := h.node
	size := n.Channels(h.dim)
	remaining := size - s.Len()
	switch {
	case s.Max() >= size:
		return newError(ErrConflictingConstraint, n, "index %d outside %s dimension of size %d", s.Max(), h.dim, size)
	case options.IsFrozen(n.Module):
		return newError(ErrConflictingConstraint, n, "layer is frozen but %d %s channels must be removed", s.Len(), h.dim)
	case remaining <= 0:
		return newError(ErrConflictingConstraint, n, "would remove all %d %s channels", size, h.dim)
	case remaining < options.MinWidth():
		return newError(ErrConflictingConstraint, n, "would leave %d %s channels, minimum is %d", remaining, h.dim, options.MinWidth())
	}
	if port, ok := n.pinned(s); ok {
		return newError(ErrConflictingConstraint, n, "input %d reads the network input or a constant and cannot lose channels %v", port, s)
	}
	return nil
}
