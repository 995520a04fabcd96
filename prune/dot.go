package prune

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

type dotNode struct {
	node *Node
}

func (n dotNode) ID() int64 {
	return int64(n.node.ID)
}

func (n dotNode) DOTID() string {
	return fmt.Sprintf("n%d", n.node.ID)
}

func (n dotNode) Attributes() []encoding.Attribute {
	label := fmt.Sprintf("%s %s %v", n.node.Name, n.node.Kind, n.node.OutShape())
	return []encoding.Attribute{{Key: "label", Value: fmt.Sprintf("%q", label)}}
}

type dotEdge struct {
	graph.Edge
	kind EdgeKind
}

func (e dotEdge) Attributes() []encoding.Attribute {
	if e.kind == EdgeDirect {
		return nil
	}
	return []encoding.Attribute{{Key: "label", Value: e.kind.String()}}
}

func (g *Graph) directed() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for _, n := range g.nodes {
		dg.AddNode(dotNode{n})
	}
	for _, e := range g.edges {
		from, to := int64(e.From.ID), int64(e.To.ID)
		if from == to || dg.HasEdgeFromTo(from, to) {
			continue
		}
		dg.SetEdge(dotEdge{Edge: dg.NewEdge(dg.Node(from), dg.Node(to)), kind: e.Kind()})
	}
	return dg
}

// Order returns the nodes in a topological order of the producer/consumer edges.
func (g *Graph) Order() ([]*Node, error) {
	sorted, err := topo.Sort(g.directed())
	if err != nil {
		return nil, errors.Wrap(err, "dependency graph is not acyclic")
	}
	out := make([]*Node, len(sorted))
	for i, n := range sorted {
		out[i] = n.(dotNode).node
	}
	return out, nil
}

// ranks returns each node's position in Order, falling back to trace order when
// the graph cannot be ordered.
func (g *Graph) ranks() map[*Node]int {
	if g.rank != nil {
		return g.rank
	}
	order, err := g.Order()
	if err != nil {
		log.WithError(err).Debug("using trace order")
		order = g.nodes
	}
	g.rank = make(map[*Node]int, len(order))
	for i, n := range order {
		g.rank[n] = i
	}
	return g.rank
}

// MarshalDOT renders the graph in Graphviz DOT format.
func (g *Graph) MarshalDOT() ([]byte, error) {
	name := "dependency_graph"
	if g.network != nil {
		name = g.network.Name()
	}
	bts, err := dot.Marshal(g.directed(), fmt.Sprintf("%q", name), "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal dependency graph")
	}
	return bts, nil
}
