package prune

import (
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/rai-project/go-prune/nn"
)

// LayerStats summarizes one parameter-owning node.
type LayerStats struct {
	Name     string
	Kind     Kind
	InShape  []int
	OutShape []int
	Params   int
}

// Stats summarizes a traced network.
type Stats struct {
	Network string
	Nodes   int
	Edges   int
	Params  int
	Layers  []LayerStats
}

// Stats reports the current shapes and parameter counts of the graph's layers.
func (g *Graph) Stats() Stats {
	s := Stats{
		Nodes: len(g.nodes),
		Edges: len(g.edges),
	}
	if g.network != nil {
		s.Network = g.network.Name()
		s.Params = nn.NumParams(g.network)
	}
	for _, n := range g.nodes {
		if n.Module == nil {
			continue
		}
		params := 0
		for _, p := range g.ParameterOf(n) {
			params += p.Numel()
		}
		s.Layers = append(s.Layers, LayerStats{
			Name:     n.Name,
			Kind:     n.Kind,
			InShape:  n.InShape(),
			OutShape: n.OutShape(),
			Params:   params,
		})
	}
	return s
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d nodes, %d edges, %s parameters (%s)\n",
		s.Network, s.Nodes, s.Edges, humanize.Comma(int64(s.Params)), humanize.SIWithDigits(float64(s.Params), 1, ""))
	for _, l := range s.Layers {
		fmt.Fprintf(&b, "  %-16s %-14s %v -> %v %s\n", l.Name, l.Kind, l.InShape, l.OutShape, humanize.Comma(int64(l.Params)))
	}
	return b.String()
}
