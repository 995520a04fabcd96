package prune

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/rai-project/go-prune/nn"
	"github.com/rai-project/go-prune/tensor"
)

// Dim selects the side of a node that is pruned.
type Dim int

const (
	// Out is the output channel dimension.
	Out Dim = iota
	// In is the input channel dimension.
	In
)

func (d Dim) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Node is one traced operation. Parameter-owning layers get exactly one node
// however many times they run.
type Node struct {
	ID     int
	Name   string
	Kind   Kind
	Op     nn.OpType
	Module nn.Module // nil unless the node owns parameters

	InShapes  [][]int
	OutShapes [][]int
	// Segments holds one channel range per input port of a concat or per output
	// port of a split.
	Segments []Segment
	// Groups is the channel group count of a grouped convolution.
	Groups int
	// Fixed lists the input ports fed by the network input or a constant.
	// Nothing upstream of them can be pruned.
	Fixed []int

	in  []*Edge
	out []*Edge
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d(%s)", n.Name, n.ID, n.Kind)
}

// InShape returns the shape of the first input.
func (n *Node) InShape() []int {
	if len(n.InShapes) == 0 {
		return nil
	}
	return append([]int(nil), n.InShapes[0]...)
}

// OutShape returns the shape of the first output.
func (n *Node) OutShape() []int {
	if len(n.OutShapes) == 0 {
		return nil
	}
	return append([]int(nil), n.OutShapes[0]...)
}

// Coupled reports whether inputs and outputs share one channel space.
func (n *Node) Coupled() bool {
	r, ok := RuleOf(n.Kind)
	return ok && r.Coupled
}

// canonical folds In onto Out for coupled nodes.
func (n *Node) canonical(d Dim) Dim {
	if n.Coupled() {
		return Out
	}
	return d
}

// Channels returns the size of the node's channel dimension on side d.
func (n *Node) Channels(d Dim) int {
	switch {
	case n.Kind == KindSplit:
		return channelsOf(n.InShape())
	case n.Coupled() || d == Out:
		return channelsOf(n.OutShape())
	default:
		return channelsOf(n.InShape())
	}
}

// pinned returns an input port of a multi-operand node that would have to lose
// channels in s although it reads the network input or a constant.
func (n *Node) pinned(s IndexSet) (int, bool) {
	if len(n.InShapes) < 2 {
		return 0, false
	}
	for _, port := range n.Fixed {
		switch n.Kind {
		case KindElementwise:
			return port, true
		case KindConcat:
			if port < len(n.Segments) && s.CountIn(n.Segments[port].Offset, n.Segments[port].Width) > 0 {
				return port, true
			}
		}
	}
	return 0, false
}

func channelsOf(shape []int) int {
	if len(shape) <= channelDim {
		return 0
	}
	return shape[channelDim]
}

// Edge says the output port FromPort of From feeds input port ToPort of To.
type Edge struct {
	From     *Node
	To       *Node
	FromPort int
	ToPort   int
}

// Kind derives the edge's translation from its endpoints.
func (e *Edge) Kind() EdgeKind {
	split := e.From.Kind == KindSplit
	concat := e.To.Kind == KindConcat
	switch {
	case split && concat:
		return EdgeSplitConcat
	case split:
		return EdgeSplit
	case concat:
		return EdgeConcat
	}
	return EdgeDirect
}

// Meta returns the endpoint segments for the edge's current shapes.
func (e *Edge) Meta() EdgeMeta {
	var m EdgeMeta
	if e.From.Kind == KindSplit && e.FromPort < len(e.From.Segments) {
		m.Src = e.From.Segments[e.FromPort]
	}
	if e.To.Kind == KindConcat && e.ToPort < len(e.To.Segments) {
		m.Dst = e.To.Segments[e.ToPort]
	}
	return m
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", e.From.Name, e.FromPort, e.To.Name, e.ToPort)
}

// Graph is the dependency graph of a traced network. Its topology is fixed once
// traced.
type Graph struct {
	network  nn.Module
	nodes    []*Node
	edges    []*Edge
	byModule map[nn.Module]*Node
	rank     map[*Node]int
	input    []int
	feeds    []feed
	// version counts applied groups; groups computed at an older version are stale.
	version int
}

// feed is an input port reading the network input.
type feed struct {
	node *Node
	port int
}

func newGraph(network nn.Module) *Graph {
	return &Graph{
		network:  network,
		byModule: make(map[nn.Module]*Node),
	}
}

func (g *Graph) addNode(n *Node) {
	n.ID = len(g.nodes)
	g.nodes = append(g.nodes, n)
	if n.Module != nil {
		g.byModule[n.Module] = n
	}
	g.rank = nil
}

func (g *Graph) contains(n *Node) bool {
	return n != nil && n.ID >= 0 && n.ID < len(g.nodes) && g.nodes[n.ID] == n
}

func (g *Graph) addEdge(from, to *Node, fromPort, toPort int) (*Edge, error) {
	if !g.contains(from) || !g.contains(to) {
		return nil, errors.Errorf("edge %v -> %v references a node outside the graph", from, to)
	}
	e := &Edge{From: from, To: to, FromPort: fromPort, ToPort: toPort}
	from.out = append(from.out, e)
	to.in = append(to.in, e)
	g.edges = append(g.edges, e)
	g.rank = nil
	return e, nil
}

// Network returns the traced network.
func (g *Graph) Network() nn.Module {
	return g.network
}

// InputShape returns the input shape the network currently accepts. Its
// channel count follows any input channels pruned since tracing.
func (g *Graph) InputShape() []int {
	shape := append([]int(nil), g.input...)
	for _, f := range g.feeds {
		if f.port < len(f.node.InShapes) && len(shape) > channelDim {
			shape[channelDim] = channelsOf(f.node.InShapes[f.port])
			break
		}
	}
	return shape
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns the nodes in trace order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Edges returns every edge in trace order.
func (g *Graph) Edges() []*Edge {
	return append([]*Edge(nil), g.edges...)
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (*Node, bool) {
	if id < 0 || id >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id], true
}

// NodeOf returns the node owning m's parameters.
func (g *Graph) NodeOf(m nn.Module) (*Node, bool) {
	n, ok := g.byModule[m]
	return n, ok
}

// NodeByName returns the first node called name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	for _, n := range g.nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// NeighborsOut returns the edges leaving n.
func (g *Graph) NeighborsOut(n *Node) []*Edge {
	return append([]*Edge(nil), n.out...)
}

// NeighborsIn returns the edges entering n.
func (g *Graph) NeighborsIn(n *Node) []*Edge {
	return append([]*Edge(nil), n.in...)
}

// ParameterOf returns the parameters owned by n, if any.
func (g *Graph) ParameterOf(n *Node) []*tensor.Tensor {
	if p, ok := n.Module.(nn.Parametric); ok {
		return p.Parameters()
	}
	return nil
}
