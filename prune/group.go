package prune

import (
	"fmt"
	"strings"
)

// Entry is one pruning action of a group.
type Entry struct {
	Node    *Node
	Dim     Dim
	Indices IndexSet
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %v", e.Node, e.Dim, e.Indices)
}

// Group is the complete set of pruning actions implied by one trigger. It is
// immutable and can be applied once.
type Group struct {
	graph   *Graph
	trigger Entry
	entries []Entry
	version int
	applied bool
}

// Trigger returns the entry the group was derived from.
func (g *Group) Trigger() Entry {
	return copyEntry(g.trigger)
}

// Entries returns the entries in discovery order. The order carries no meaning.
func (g *Group) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Len returns the number of entries.
func (g *Group) Len() int {
	return len(g.entries)
}

// Lookup returns the indices removed from n on side d.
func (g *Group) Lookup(n *Node, d Dim) (IndexSet, bool) {
	d = n.canonical(d)
	for _, e := range g.entries {
		if e.Node == n && e.Dim == d {
			return e.Indices.Ints(), true
		}
	}
	return nil, false
}

// Prunable returns the entries whose node owns parameters.
func (g *Group) Prunable() []Entry {
	var out []Entry
	for _, e := range g.entries {
		if e.Node.Module != nil {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// Applied reports whether the group was already applied.
func (g *Group) Applied() bool {
	return g.applied
}

func (g *Group) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "group of %d (trigger %s)", len(g.entries), g.trigger)
	for _, e := range g.entries {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}

func copyEntry(e Entry) Entry {
	e.Indices = e.Indices.Ints()
	return e
}
