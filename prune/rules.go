package prune

import (
	"fmt"

	"github.com/pkg/errors"
)

// Rule describes how a node kind relates its input and output channels.
type Rule struct {
	// Coupled kinds have a single channel space shared by every input and output.
	Coupled bool
}

// rules is indexed by Kind. A nil entry means the kind has no pruning rule.
var rules = [numKinds]*Rule{
	KindUnknown:       nil,
	KindParametric:    {},
	KindGroupedConv:   {},
	KindNormalization: {Coupled: true},
	KindPointwise:     {Coupled: true},
	KindElementwise:   {Coupled: true},
	KindConcat:        {Coupled: true},
	KindSplit:         {Coupled: true},
	KindReshape:       {Coupled: true},
	KindIdentity:      {Coupled: true},
}

// RuleOf returns the rule registered for k.
func RuleOf(k Kind) (*Rule, bool) {
	if k < 0 || k >= numKinds || rules[k] == nil {
		return nil, false
	}
	return rules[k], true
}

// EdgeKind says which offsets apply when indices cross an edge.
type EdgeKind int

const (
	// EdgeDirect carries indices unchanged.
	EdgeDirect EdgeKind = iota
	// EdgeConcat enters a concat at the target port's offset.
	EdgeConcat
	// EdgeSplit leaves a split from the source port's segment.
	EdgeSplit
	// EdgeSplitConcat leaves a split segment and enters a concat.
	EdgeSplitConcat
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeDirect:
		return "direct"
	case EdgeConcat:
		return "concat"
	case EdgeSplit:
		return "split"
	case EdgeSplitConcat:
		return "split-concat"
	}
	return fmt.Sprintf("edge(%d)", int(k))
}

// Direction of travel across an edge.
type Direction int

const (
	// Forward goes from producer to consumer.
	Forward Direction = iota
	// Backward goes from consumer to producer.
	Backward
)

// Segment is a contiguous channel range inside a concatenated or split tensor.
type Segment struct {
	Offset int
	Width  int
}

// EdgeMeta holds the segments an edge's translation uses. Src is the source's
// split segment and Dst the target's concat segment.
type EdgeMeta struct {
	Src Segment
	Dst Segment
}

// Translate maps an index set across an edge of the given kind.
func Translate(kind EdgeKind, dir Direction, s IndexSet, meta EdgeMeta) (IndexSet, error) {
	switch kind {
	case EdgeDirect:
		return s, nil
	case EdgeConcat:
		if dir == Forward {
			return s.Shift(meta.Dst.Offset), nil
		}
		return s.Window(meta.Dst.Offset, meta.Dst.Width), nil
	case EdgeSplit:
		if dir == Forward {
			return s.Window(meta.Src.Offset, meta.Src.Width), nil
		}
		return s.Shift(meta.Src.Offset), nil
	case EdgeSplitConcat:
		if dir == Forward {
			return s.Window(meta.Src.Offset, meta.Src.Width).Shift(meta.Dst.Offset), nil
		}
		return s.Window(meta.Dst.Offset, meta.Dst.Width).Shift(meta.Src.Offset), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedOperation, "no translation for %v", kind)
}

// groupClosure expands indices on one side of a grouped convolution to every
// channel of the touched groups, on both sides.
func groupClosure(n *Node, from Dim, s IndexSet) (in, out IndexSet) {
	g := n.Groups
	inPer := n.Channels(In) / g
	outPer := n.Channels(Out) / g
	per := outPer
	if from == In {
		per = inPer
	}
	var inIdx, outIdx []int
	last := -1
	for _, i := range s {
		grp := i / per
		if grp == last {
			continue
		}
		last = grp
		for j := 0; j < inPer; j++ {
			inIdx = append(inIdx, grp*inPer+j)
		}
		for j := 0; j < outPer; j++ {
			outIdx = append(outIdx, grp*outPer+j)
		}
	}
	return NewIndexSet(inIdx...), NewIndexSet(outIdx...)
}

// checkReshape accepts reshapes that keep the batch and channel dimensions.
func checkReshape(n *Node) error {
	in, out := n.InShape(), n.OutShape()
	if len(in) > channelDim && len(out) > channelDim &&
		in[0] == out[0] && in[channelDim] == out[channelDim] {
		return nil
	}
	return newError(ErrAmbiguousReshape, n, "reshape %v -> %v mixes the channel dimension with another", in, out)
}
