package prune

import (
	"context"
	"sort"

	opentracing "github.com/opentracing/opentracing-go"

	"github.com/rai-project/go-prune/nn"
)

// Apply removes every entry of group from the network in place and updates the
// graph's shape metadata. The whole group is checked before anything is
// mutated.
func Apply(ctx context.Context, group *Group) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "apply")
	defer span.Finish()

	if group.applied {
		span.SetTag("error", true)
		return newError(ErrGroupConsumed, group.trigger.Node, "group was already applied")
	}
	if group.version != group.graph.version {
		span.SetTag("error", true)
		return newError(ErrStaleGroup, group.trigger.Node, "graph changed since the group was computed")
	}

	entries := group.sorted()
	for _, e := range entries {
		if err := check(e); err != nil {
			span.SetTag("error", true)
			return err
		}
	}
	for _, e := range entries {
		pruneModule(e)
		updateShapes(e)
	}
	group.applied = true
	group.graph.version++

	span.SetTag("entries", len(entries))
	log.WithField("trigger", group.trigger.String()).Debugf("applied %d entries", len(entries))
	return nil
}

// sorted orders entries by the graph's topological order, then In before Out.
func (g *Group) sorted() []Entry {
	entries := append([]Entry(nil), g.entries...)
	rank := g.graph.ranks()
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := rank[entries[i].Node], rank[entries[j].Node]
		if ri != rj {
			return ri < rj
		}
		return entries[i].Dim > entries[j].Dim
	})
	return entries
}

// moduleChannels reads the live channel count of a parameter-owning module.
func moduleChannels(m nn.Module, d Dim) (int, bool) {
	switch m := m.(type) {
	case *nn.Linear:
		if d == Out {
			return m.OutFeatures, true
		}
		return m.InFeatures, true
	case *nn.Conv2d:
		if d == Out {
			return m.OutChannels, true
		}
		return m.InChannels, true
	case *nn.BatchNorm:
		return m.Features, true
	case *nn.LayerNorm:
		return m.Features, true
	}
	return 0, false
}

func check(e Entry) error {
	n := e.Node
	size := n.Channels(e.Dim)
	if e.Indices.Max() >= size || size-e.Indices.Len() <= 0 {
		return newError(ErrStaleGroup, n, "indices %v do not fit %s dimension of size %d", e.Indices, e.Dim, size)
	}
	if n.Module == nil {
		return nil
	}
	live, ok := moduleChannels(n.Module, e.Dim)
	if !ok {
		return newError(ErrUnsupportedOperation, n, "no pruning function for %T", n.Module)
	}
	if live != size {
		return newError(ErrStaleGroup, n, "module has %d %s channels, graph records %d", live, e.Dim, size)
	}
	return nil
}

func pruneModule(e Entry) {
	idxs := e.Indices.Ints()
	k := len(idxs)
	switch m := e.Node.Module.(type) {
	case *nn.Linear:
		if e.Dim == Out {
			m.Weight = m.Weight.Drop(0, idxs)
			if m.Bias != nil {
				m.Bias = m.Bias.Drop(0, idxs)
			}
			m.OutFeatures -= k
			return
		}
		m.Weight = m.Weight.Drop(1, idxs)
		m.InFeatures -= k
	case *nn.Conv2d:
		if e.Dim == Out {
			if e.Node.Kind == KindGroupedConv {
				m.Groups -= k / (m.OutChannels / m.Groups)
			}
			m.Weight = m.Weight.Drop(0, idxs)
			if m.Bias != nil {
				m.Bias = m.Bias.Drop(0, idxs)
			}
			m.OutChannels -= k
			return
		}
		// Grouped convolutions lose whole groups; the per-group input width
		// stored in the weight is unchanged.
		if e.Node.Kind != KindGroupedConv {
			m.Weight = m.Weight.Drop(1, idxs)
		}
		m.InChannels -= k
	case *nn.BatchNorm:
		m.Weight = m.Weight.Drop(0, idxs)
		m.Bias = m.Bias.Drop(0, idxs)
		m.RunningMean = m.RunningMean.Drop(0, idxs)
		m.RunningVar = m.RunningVar.Drop(0, idxs)
		m.Features -= k
	case *nn.LayerNorm:
		m.Weight = m.Weight.Drop(0, idxs)
		m.Bias = m.Bias.Drop(0, idxs)
		m.Features -= k
	}
}

func updateShapes(e Entry) {
	n, s := e.Node, e.Indices
	k := s.Len()
	switch {
	case n.Kind == KindConcat:
		for port := range n.InShapes {
			if port < len(n.Segments) {
				shrink(n.InShapes[port], s.CountIn(n.Segments[port].Offset, n.Segments[port].Width))
			}
		}
		n.Segments = reflow(n.Segments, s)
		shrinkAll(n.OutShapes, k)
	case n.Kind == KindSplit:
		for port := range n.OutShapes {
			if port < len(n.Segments) {
				shrink(n.OutShapes[port], s.CountIn(n.Segments[port].Offset, n.Segments[port].Width))
			}
		}
		n.Segments = reflow(n.Segments, s)
		shrinkAll(n.InShapes, k)
	case n.Coupled():
		shrinkAll(n.InShapes, k)
		shrinkAll(n.OutShapes, k)
	case e.Dim == Out:
		if n.Kind == KindGroupedConv {
			n.Groups -= k / (n.Channels(Out) / n.Groups)
		}
		shrinkAll(n.OutShapes, k)
	default:
		shrinkAll(n.InShapes, k)
	}
	// A grouped convolution down to one group is an ordinary convolution.
	if n.Kind == KindGroupedConv && n.Groups == 1 && e.Dim == Out {
		n.Kind = KindParametric
	}
}

func shrink(shape []int, k int) {
	if len(shape) > channelDim {
		shape[channelDim] -= k
	}
}

func shrinkAll(shapes [][]int, k int) {
	for _, s := range shapes {
		shrink(s, k)
	}
}

// reflow shrinks each segment by the indices removed from it and recomputes
// offsets.
func reflow(segs []Segment, s IndexSet) []Segment {
	out := make([]Segment, len(segs))
	offset := 0
	for i, seg := range segs {
		out[i] = Segment{Offset: offset, Width: seg.Width - s.CountIn(seg.Offset, seg.Width)}
		offset += out[i].Width
	}
	return out
}
