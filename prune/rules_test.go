package prune

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rai-project/go-prune/nn"
)

func TestRuleTableIsExhaustive(t *testing.T) {
	for k := Kind(0); k < numKinds; k++ {
		rule, ok := RuleOf(k)
		if k == KindUnknown {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok, "no rule for %s", k)
		assert.NotEqual(t, "", k.String())
		if k == KindParametric || k == KindGroupedConv {
			assert.False(t, rule.Coupled, "%s must not couple its sides", k)
		} else {
			assert.True(t, rule.Coupled, "%s must couple its sides", k)
		}
	}
	_, ok := RuleOf(numKinds)
	assert.False(t, ok)
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestClassify(t *testing.T) {
	conv := nn.NewConv2d("c", 4, 4, 1)
	dw := nn.NewConv2d("dw", 4, 4, 1, nn.Groups(4))
	cases := []struct {
		op   *nn.Op
		want Kind
	}{
		{&nn.Op{Type: nn.OpLinear}, KindParametric},
		{&nn.Op{Type: nn.OpConv2d, Module: conv}, KindParametric},
		{&nn.Op{Type: nn.OpConv2d, Module: dw}, KindGroupedConv},
		{&nn.Op{Type: nn.OpBatchNorm}, KindNormalization},
		{&nn.Op{Type: nn.OpLayerNorm}, KindNormalization},
		{&nn.Op{Type: nn.OpReLU}, KindPointwise},
		{&nn.Op{Type: nn.OpPool}, KindPointwise},
		{&nn.Op{Type: nn.OpIdentity}, KindIdentity},
		{&nn.Op{Type: nn.OpAdd}, KindElementwise},
		{&nn.Op{Type: nn.OpConcat, Attrs: nn.Attrs{Dim: 1}}, KindConcat},
		{&nn.Op{Type: nn.OpConcat, Attrs: nn.Attrs{Dim: 0}}, KindElementwise},
		{&nn.Op{Type: nn.OpConcat, Attrs: nn.Attrs{Dim: -3}, InShapes: [][]int{{1, 2, 3, 3}}}, KindConcat},
		{&nn.Op{Type: nn.OpSplit, Attrs: nn.Attrs{Dim: 1}}, KindSplit},
		{&nn.Op{Type: nn.OpSplit, Attrs: nn.Attrs{Dim: 2}}, KindPointwise},
		{&nn.Op{Type: nn.OpFlatten}, KindReshape},
		{&nn.Op{Type: nn.OpReshape}, KindReshape},
		{&nn.Op{Type: "fft"}, KindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.op), "%s %+v", tc.op.Type, tc.op.Attrs)
	}
}

func TestTranslate(t *testing.T) {
	s := IndexSet{0, 2, 5}
	cases := []struct {
		name string
		kind EdgeKind
		dir  Direction
		meta EdgeMeta
		want IndexSet
	}{
		{"direct", EdgeDirect, Forward, EdgeMeta{}, IndexSet{0, 2, 5}},
		{"concat forward", EdgeConcat, Forward, EdgeMeta{Dst: Segment{Offset: 4, Width: 6}}, IndexSet{4, 6, 9}},
		{"concat backward", EdgeConcat, Backward, EdgeMeta{Dst: Segment{Offset: 2, Width: 3}}, IndexSet{0}},
		{"split forward", EdgeSplit, Forward, EdgeMeta{Src: Segment{Offset: 2, Width: 4}}, IndexSet{0, 3}},
		{"split backward", EdgeSplit, Backward, EdgeMeta{Src: Segment{Offset: 2, Width: 4}}, IndexSet{2, 4, 7}},
		{"split-concat forward", EdgeSplitConcat, Forward,
			EdgeMeta{Src: Segment{Offset: 0, Width: 3}, Dst: Segment{Offset: 10, Width: 3}}, IndexSet{10, 12}},
		{"split-concat backward", EdgeSplitConcat, Backward,
			EdgeMeta{Src: Segment{Offset: 3, Width: 3}, Dst: Segment{Offset: 0, Width: 3}}, IndexSet{3, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Translate(tc.kind, tc.dir, s, tc.meta)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Translate(EdgeKind(9), Forward, s, EdgeMeta{})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.Equal(t, "edge(9)", EdgeKind(9).String())
}

func TestGroupClosure(t *testing.T) {
	// 6 inputs and 9 outputs in 3 groups: 2 inputs and 3 outputs per group.
	n := &Node{
		Kind:      KindGroupedConv,
		Groups:    3,
		InShapes:  [][]int{{1, 6, 4, 4}},
		OutShapes: [][]int{{1, 9, 4, 4}},
	}
	in, out := groupClosure(n, Out, IndexSet{4})
	assert.Equal(t, IndexSet{2, 3}, in)
	assert.Equal(t, IndexSet{3, 4, 5}, out)

	in, out = groupClosure(n, In, IndexSet{0, 5})
	assert.Equal(t, IndexSet{0, 1, 4, 5}, in)
	assert.Equal(t, IndexSet{0, 1, 2, 6, 7, 8}, out)
}

func TestCheckReshape(t *testing.T) {
	ok := &Node{Kind: KindReshape, InShapes: [][]int{{2, 8, 1, 1}}, OutShapes: [][]int{{2, 8}}}
	assert.NoError(t, checkReshape(ok))

	merged := &Node{Kind: KindReshape, InShapes: [][]int{{2, 8, 2, 2}}, OutShapes: [][]int{{2, 32}}}
	assert.ErrorIs(t, checkReshape(merged), ErrAmbiguousReshape)

	batch := &Node{Kind: KindReshape, InShapes: [][]int{{2, 8}}, OutShapes: [][]int{{1, 8, 2}}}
	assert.ErrorIs(t, checkReshape(batch), ErrAmbiguousReshape)
}
