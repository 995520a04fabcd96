package prune

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rai-project/go-prune/nn"
	"github.com/rai-project/go-prune/tensor"
)

func mustTrace(t *testing.T, net nn.Module, dims ...int) *Graph {
	t.Helper()
	g, err := Trace(context.Background(), net, tensor.New(dims...))
	require.NoError(t, err)
	return g
}

func mustNode(t *testing.T, g *Graph, m nn.Module) *Node {
	t.Helper()
	n, ok := g.NodeOf(m)
	require.True(t, ok, "%s was not traced", m.Name())
	return n
}

func firstOfKind(t *testing.T, g *Graph, k Kind) *Node {
	t.Helper()
	for _, n := range g.Nodes() {
		if n.Kind == k {
			return n
		}
	}
	require.FailNow(t, "no node of kind "+k.String())
	return nil
}

// prunable maps "layer/dim" to the indices the group removes from it.
func prunable(group *Group) map[string][]int {
	out := make(map[string][]int)
	for _, e := range group.Prunable() {
		out[fmt.Sprintf("%s/%s", e.Node.Name, e.Dim)] = e.Indices.Ints()
	}
	return out
}

func run(t *testing.T, net nn.Module, dims ...int) []int {
	t.Helper()
	var out *nn.Var
	require.NotPanics(t, func() {
		out = net.Forward(nn.NewVar(tensor.Randn(1, dims...)))
	})
	return out.Shape()
}

// twoLayers is A(4 -> 10) followed directly by B(10 -> 3).
func twoLayers() (*nn.Sequential, *nn.Linear, *nn.Linear) {
	a := nn.NewLinear("A", 4, 10, true)
	b := nn.NewLinear("B", 10, 3, true)
	return nn.NewSequential("two_layers", a, b), a, b
}

// residual adds a conv's output back onto its input, which the stem produces.
func residual() (nn.Module, *nn.Conv2d, *nn.Conv2d, *nn.Conv2d) {
	stem := nn.NewConv2d("stem", 3, 16, 3, nn.Padding(1))
	main := nn.NewConv2d("main", 16, 16, 3, nn.Padding(1))
	head := nn.NewConv2d("head", 16, 4, 1)
	net := nn.NewFunc("residual", func(x *nn.Var) *nn.Var {
		skip := stem.Forward(x)
		return head.Forward(nn.Add(main.Forward(skip), skip))
	}, stem, main, head)
	return net, stem, main, head
}

// concatenated joins a 4-wide and a 6-wide conv into a 10-wide head input.
func concatenated() (nn.Module, *nn.Conv2d, *nn.Conv2d, *nn.Conv2d) {
	c1 := nn.NewConv2d("c1", 3, 4, 1)
	c2 := nn.NewConv2d("c2", 3, 6, 1)
	head := nn.NewConv2d("head", 10, 2, 1)
	net := nn.NewFunc("concatenated", func(x *nn.Var) *nn.Var {
		return head.Forward(nn.Concat(1, c1.Forward(x), c2.Forward(x)))
	}, c1, c2, head)
	return net, c1, c2, head
}

// grouped runs c0(2 -> 8), a 4-group conv g(8 -> 4) and head(4 -> 1).
func grouped() (nn.Module, *nn.Conv2d, *nn.Conv2d, *nn.Conv2d) {
	c0 := nn.NewConv2d("c0", 2, 8, 1)
	g := nn.NewConv2d("g", 8, 4, 3, nn.Padding(1), nn.Groups(4))
	head := nn.NewConv2d("head", 4, 1, 1)
	return nn.NewSequential("grouped", c0, g, head), c0, g, head
}
